package services

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
	"github.com/greenloop/recircle-backend/internal/utils"
)

// Verification thresholds. Tuned against field data from the pilot
// deployment; change with care.
const (
	MinConfidence      = 0.8
	MinBoundingBoxArea = 0.25
	MinFrameCount      = 4
	MinMotionScore     = 0.3
	MaxFrameGapMs      = 500
	FrameWindowMs      = 2000
	MaxBBoxDrift       = 0.2

	MaxGpsAccuracyMeters = 20.0
	MaxSpeedMps          = 5.0
	GpsJumpMeters        = 50.0
	GpsJumpWindow        = 10 * time.Second
	MaxAltitudeDiff      = 10.0

	MaxPerceptualDistance = 5
	PerceptualHistorySize = 100

	MinVerificationScore = 0.85
)

// Rejection reasons stored on the action and reported to the client.
const (
	ReasonLowConfidence       = "low_confidence"
	ReasonBoundingBoxSmall    = "bounding_box_too_small"
	ReasonInsufficientFrames  = "insufficient_frames"
	ReasonInsufficientMotion  = "insufficient_motion"
	ReasonFrameGapExceeded    = "frame_gap_exceeded"
	ReasonFrameWindowExceeded = "frame_window_exceeded"
	ReasonInconsistentFrames  = "inconsistent_frames"
	ReasonGpsAccuracy         = "gps_accuracy_exceeded"
	ReasonOutOfRange          = "out_of_range"
	ReasonMaterialNotAllowed  = "material_not_allowed"
	ReasonSpeedAnomaly        = "speed_anomaly"
	ReasonGpsJump             = "gps_jump"
	ReasonAltitudeMismatch    = "altitude_mismatch"
	ReasonDuplicateImage      = "duplicate_image"
	ReasonSimilarImage        = "similar_image"
	ReasonLowScore            = "low_score"
	ReasonFraudSuspected      = "fraud_suspected"
)

// VerificationOutcome is the verdict the pipeline produces for one
// pending action.
type VerificationOutcome struct {
	Status          string
	Score           *float64
	AIScore         *float64
	AIResult        *types.AIResult
	RejectionReason string
	// PenaltyReason is the trust-ledger reason applied when the action
	// is rejected. Empty means the rejection carries the generic
	// rejected-action penalty.
	PenaltyReason string
}

type VerificationService interface {
	// Verify runs the full pipeline against a claimed action. It reads
	// history through the repos but never writes; persisting the
	// verdict is the orchestrator's job.
	Verify(ctx context.Context, tx *gorm.DB, action *types.RecycleAction, user *types.User, point *types.RecyclingPoint) (*VerificationOutcome, error)
}

type verificationService struct {
	log        *logger.Logger
	actionRepo repos.RecycleActionRepo
	aiClient   AIClientService
}

func NewVerificationService(actionRepo repos.RecycleActionRepo, aiClient AIClientService, baseLog *logger.Logger) VerificationService {
	serviceLog := baseLog.With("service", "VerificationService")
	return &verificationService{log: serviceLog, actionRepo: actionRepo, aiClient: aiClient}
}

func (vs *verificationService) Verify(ctx context.Context, tx *gorm.DB, action *types.RecycleAction, user *types.User, point *types.RecyclingPoint) (*VerificationOutcome, error) {
	samples, err := decodeFrameSamples(action.FrameSamples)
	if err != nil {
		return nil, fmt.Errorf("decode frame samples: %w", err)
	}

	// Stage 1: detection quality.
	consistencyScore, reject := evaluateDetection(action, samples)
	if reject != "" {
		return rejected(reject, ""), nil
	}

	// Stage 2: location plausibility.
	lastAction, err := vs.actionRepo.GetLastByUser(ctx, tx, action.UserID, action.ID)
	if err != nil {
		return nil, fmt.Errorf("load last action: %w", err)
	}
	locationScore, reject, penalty := evaluateLocation(action, point, lastAction)
	if reject != "" {
		return rejected(reject, penalty), nil
	}

	// Stage 3: uniqueness.
	exactDup, err := vs.actionRepo.ExistsByImageHash(ctx, tx, action.ImageHash, action.ID)
	if err != nil {
		return nil, fmt.Errorf("check image hash: %w", err)
	}
	if exactDup {
		return rejected(ReasonDuplicateImage, "duplicate_image"), nil
	}
	recent, err := vs.actionRepo.GetRecentByUser(ctx, tx, action.UserID, action.ID, PerceptualHistorySize)
	if err != nil {
		return nil, fmt.Errorf("load recent actions: %w", err)
	}
	uniquenessScore, similar := evaluateUniqueness(action.PerceptualHash, recent)
	if similar {
		return rejected(ReasonSimilarImage, "phash_similar"), nil
	}

	// Stage 4: AI classification. This is the only stage that leaves
	// the process, so it runs after the cheap gates.
	aiResult, aiScore := vs.aiClient.Classify(ctx, ClassificationRequest{
		ImageURL:        action.ImageURL,
		ClaimedMaterial: action.Material,
	})

	// Stage 5: composite score.
	motionScore := math.Min(action.MotionScore/0.5, 1.0)
	final := utils.Clamp01(
		0.20*action.Confidence +
			0.15*consistencyScore +
			0.10*motionScore +
			0.15*locationScore +
			0.10*uniquenessScore +
			0.20*aiScore +
			0.10*user.TrustScore)

	outcome := &VerificationOutcome{
		Score:    &final,
		AIScore:  &aiScore,
		AIResult: aiResult,
	}
	if final >= MinVerificationScore {
		outcome.Status = types.ActionStatusVerified
	} else {
		outcome.Status = types.ActionStatusRejected
		outcome.RejectionReason = ReasonLowScore
	}
	vs.log.Debug("verification scored",
		"action_id", action.ID,
		"score", final,
		"ai_score", aiScore,
		"status", outcome.Status)
	return outcome, nil
}

func rejected(reason, penalty string) *VerificationOutcome {
	return &VerificationOutcome{
		Status:          types.ActionStatusRejected,
		RejectionReason: reason,
		PenaltyReason:   penalty,
	}
}

func decodeFrameSamples(raw []byte) ([]types.FrameSample, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var samples []types.FrameSample
	if err := json.Unmarshal(raw, &samples); err != nil {
		return nil, err
	}
	return samples, nil
}

// evaluateDetection applies the stage 1 gates and returns the frame
// consistency score on success.
func evaluateDetection(action *types.RecycleAction, samples []types.FrameSample) (float64, string) {
	if action.Confidence < MinConfidence {
		return 0, ReasonLowConfidence
	}
	if action.BoundingBoxAreaRatio < MinBoundingBoxArea {
		return 0, ReasonBoundingBoxSmall
	}
	// The claimed frame count is not trusted: the per-frame samples are
	// the evidence, and a submission without enough of them cannot prove
	// a live capture.
	if action.FrameCountDetected < MinFrameCount || len(samples) < MinFrameCount {
		return 0, ReasonInsufficientFrames
	}
	if action.MotionScore < MinMotionScore {
		return 0, ReasonInsufficientMotion
	}

	// Clients usually send samples in capture order, but nothing
	// enforces it.
	sort.Slice(samples, func(i, j int) bool { return samples[i].TimestampMs < samples[j].TimestampMs })
	if samples[len(samples)-1].TimestampMs-samples[0].TimestampMs > FrameWindowMs {
		return 0, ReasonFrameWindowExceeded
	}
	for i := 1; i < len(samples); i++ {
		if samples[i].TimestampMs-samples[i-1].TimestampMs > MaxFrameGapMs {
			return 0, ReasonFrameGapExceeded
		}
	}

	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	confs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.BoundingBox.X
		ys[i] = s.BoundingBox.Y
		confs[i] = s.Confidence
	}
	// An object that teleports around the viewport between frames was
	// not tracked continuously.
	if utils.StdDev(xs) > MaxBBoxDrift || utils.StdDev(ys) > MaxBBoxDrift {
		return 0, ReasonInconsistentFrames
	}
	consistency := 1.0 - math.Min(utils.StdDev(confs)/MaxBBoxDrift, 1.0)
	return consistency, ""
}

// evaluateLocation applies the stage 2 gates. The third return value is
// the trust penalty reason for anomalies that are more damning than a
// plain rejection.
func evaluateLocation(action *types.RecycleAction, point *types.RecyclingPoint, lastAction *types.RecycleAction) (float64, string, string) {
	if action.GpsAccuracy > MaxGpsAccuracyMeters {
		return 0, ReasonGpsAccuracy, "gps_accuracy"
	}

	distance := utils.HaversineMeters(action.GpsLat, action.GpsLng, point.Latitude, point.Longitude)
	if distance > point.RadiusMeters {
		return 0, ReasonOutOfRange, "gps_anomaly"
	}
	if !point.Allows(action.Material) {
		return 0, ReasonMaterialNotAllowed, ""
	}

	// Movement checks only compare against a fix inside the jump
	// window. An older action is just a different trip.
	if lastAction != nil {
		elapsed := action.CreatedAt.Sub(lastAction.CreatedAt)
		if elapsed > 0 && elapsed < GpsJumpWindow {
			moved := utils.HaversineMeters(action.GpsLat, action.GpsLng, lastAction.GpsLat, lastAction.GpsLng)
			if moved/elapsed.Seconds() > MaxSpeedMps {
				return 0, ReasonSpeedAnomaly, "gps_anomaly"
			}
			if moved > GpsJumpMeters {
				return 0, ReasonGpsJump, "gps_anomaly"
			}
		}
	}

	if action.GpsAltitude != nil && point.Altitude != nil {
		if math.Abs(*action.GpsAltitude-*point.Altitude) > MaxAltitudeDiff {
			return 0, ReasonAltitudeMismatch, "gps_anomaly"
		}
	}

	accuracyScore := 1.0 - action.GpsAccuracy/MaxGpsAccuracyMeters
	distanceScore := 1.0
	if point.RadiusMeters > 0 {
		distanceScore = utils.Clamp01(1.0 - distance/point.RadiusMeters)
	}
	return (utils.Clamp01(accuracyScore) + distanceScore) / 2.0, "", ""
}

// evaluateUniqueness compares the perceptual hash against recent
// history. It returns the uniqueness score and whether the image is
// close enough to an earlier one to reject outright.
func evaluateUniqueness(phash string, recent []*types.RecycleAction) (float64, bool) {
	if len(recent) == 0 {
		return 1.0, false
	}
	minDist := math.MaxInt32
	for _, prior := range recent {
		if prior.PerceptualHash == "" {
			continue
		}
		d := utils.HammingDistance(phash, prior.PerceptualHash)
		if d < minDist {
			minDist = d
		}
	}
	if minDist == math.MaxInt32 {
		return 1.0, false
	}
	if minDist <= MaxPerceptualDistance {
		return 0, true
	}
	if minDist > 10 {
		return 1.0, false
	}
	return float64(minDist) / 10.0, false
}
