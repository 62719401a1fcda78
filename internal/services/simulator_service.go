package services

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/osvaldoandrade/riskdesk/internal/idgen"
	"github.com/osvaldoandrade/riskdesk/internal/metrics"
	"github.com/osvaldoandrade/riskdesk/internal/repository"
	"github.com/osvaldoandrade/riskdesk/pkg/domain"
)

var (
	ErrInvalidJobRequest = errors.New("invalid job request")
	ErrPurchaseToken     = errors.New("invalid purchase token")
	ErrPurchaseMismatch  = errors.New("purchase does not match job")
	ErrJobNotFound       = errors.New("job not found")
)

// Simulated timeline offsets and identifier shapes.
const (
	payByOffset          = 10 * time.Minute
	submitResultOffset   = 20 * time.Minute
	unlockOffset         = 30 * time.Minute
	disputeUnlockOffset  = 40 * time.Minute
	defaultCompleteAfter = 2
	jobIDBytes           = 12
	blockchainIDBytes    = 6
	transactionIDBytes   = 10
	blockchainIDPrefix   = "BlockchainID-"
	transactionIDPrefix  = "TX-"
)

var agentIdentifiers = map[domain.RiskType]string{
	domain.RiskTrading:                "TradingRiskAgent-v1",
	domain.RiskLendingBorrowing:       "LendingRiskAgent-v1",
	domain.RiskProtocolSecurity:       "ProtocolSecurityAgent-v1",
	domain.RiskLiquidityConcentration: "LiquidityRiskAgent-v1",
	domain.RiskHedgeFund:              "HedgeFundAgent-v1",
}

// SimulatorService plays the remote agent: it accepts jobs, takes purchases
// and completes each job a fixed number of polls after payment.
type SimulatorService interface {
	StartJob(ctx context.Context, req domain.JobRequest) (domain.JobDescriptor, error)
	Purchase(ctx context.Context, token string, req domain.PaymentRequest) (map[string]any, error)
	Status(ctx context.Context, jobID string) (domain.JobStatus, error)
}

type simulatorService struct {
	repo          repository.JobRepository
	token         string
	completeAfter int
	ids           *idgen.Generator
	logger        *slog.Logger
	now           func() time.Time
}

// NewSimulatorService builds a simulator. An empty token accepts any purchase.
func NewSimulatorService(repo repository.JobRepository, token string, completeAfterPolls int, logger *slog.Logger, now func() time.Time) SimulatorService {
	if completeAfterPolls <= 0 {
		completeAfterPolls = defaultCompleteAfter
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &simulatorService{
		repo:          repo,
		token:         strings.TrimSpace(token),
		completeAfter: completeAfterPolls,
		ids:           idgen.New(idgen.WithLogger(logger)),
		logger:        logger.With("component", "simulator"),
		now:           now,
	}
}

func (s *simulatorService) StartJob(ctx context.Context, req domain.JobRequest) (domain.JobDescriptor, error) {
	if strings.TrimSpace(req.IdentifierFromPurchaser) == "" {
		return domain.JobDescriptor{}, fmt.Errorf("%w: identifier_from_purchaser is required", ErrInvalidJobRequest)
	}
	rt, err := domain.ParseRiskType(string(req.RiskType))
	if err != nil {
		return domain.JobDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidJobRequest, err)
	}
	req.RiskType = rt
	if err := domain.ValidateInput(req.InputData); err != nil {
		return domain.JobDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidJobRequest, err)
	}
	hash, err := InputHash(req.InputData)
	if err != nil {
		return domain.JobDescriptor{}, fmt.Errorf("%w: %v", ErrInvalidJobRequest, err)
	}

	now := s.now()
	desc := domain.JobDescriptor{
		JobID:                     s.ids.Generate(jobIDBytes),
		BlockchainIdentifier:      blockchainIDPrefix + s.ids.Generate(blockchainIDBytes),
		PayByTime:                 now.Add(payByOffset).UnixMilli(),
		SubmitResultTime:          now.Add(submitResultOffset).UnixMilli(),
		UnlockTime:                now.Add(unlockOffset).UnixMilli(),
		ExternalDisputeUnlockTime: now.Add(disputeUnlockOffset).UnixMilli(),
		AgentIdentifier:           agentIdentifiers[rt],
		InputHash:                 hash,
	}
	job := domain.SimulatedJob{
		Descriptor:    desc,
		Request:       req,
		Status:        domain.JobSubmitted,
		PaymentStatus: domain.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return domain.JobDescriptor{}, fmt.Errorf("store job: %w", err)
	}
	metrics.SimulatedJobsTotal.WithLabelValues(string(rt), "started").Inc()
	s.logger.Info("job accepted", "job_id", desc.JobID, "risk_type", string(rt), "identifier", req.IdentifierFromPurchaser)
	return desc, nil
}

func (s *simulatorService) Purchase(ctx context.Context, token string, req domain.PaymentRequest) (map[string]any, error) {
	if s.token != "" && subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.token)) != 1 {
		return nil, ErrPurchaseToken
	}
	if strings.TrimSpace(req.BlockchainIdentifier) == "" {
		return nil, fmt.Errorf("%w: blockchainIdentifier is required", ErrPurchaseMismatch)
	}
	jobID, err := s.repo.JobIDForBlockchain(ctx, req.BlockchainIdentifier)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}

	job, err := s.repo.Update(ctx, jobID, func(j *domain.SimulatedJob) error {
		if j.Request.IdentifierFromPurchaser != req.IdentifierFromPurchaser {
			return fmt.Errorf("%w: identifierFromPurchaser", ErrPurchaseMismatch)
		}
		if req.InputHash != "" && j.Descriptor.InputHash != req.InputHash {
			return fmt.Errorf("%w: inputHash", ErrPurchaseMismatch)
		}
		if j.Purchased {
			return nil
		}
		j.Purchased = true
		j.Status = domain.JobProcessing
		j.PaymentStatus = domain.PaymentProcessing
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	metrics.SimulatedJobsTotal.WithLabelValues(string(job.Request.RiskType), "purchased").Inc()
	s.logger.Info("job purchased", "job_id", jobID)
	return map[string]any{
		"status":         "success",
		"job_id":         jobID,
		"transaction_id": transactionIDPrefix + s.ids.Generate(transactionIDBytes),
	}, nil
}

func (s *simulatorService) Status(ctx context.Context, jobID string) (domain.JobStatus, error) {
	completed := false
	job, err := s.repo.Update(ctx, jobID, func(j *domain.SimulatedJob) error {
		completed = false
		if !j.Purchased || j.Status == domain.JobCompleted || j.Status == domain.JobFailed {
			return nil
		}
		j.PollsSincePurchase++
		if j.PollsSincePurchase >= s.completeAfter {
			j.Status = domain.JobCompleted
			j.PaymentStatus = domain.PaymentCompleted
			j.Result = assessmentResult(j)
			completed = true
		}
		return nil
	})
	if errors.Is(err, repository.ErrNotFound) {
		return domain.JobStatus{}, ErrJobNotFound
	}
	if err != nil {
		return domain.JobStatus{}, err
	}
	if completed {
		metrics.SimulatedJobsTotal.WithLabelValues(string(job.Request.RiskType), "completed").Inc()
		s.logger.Info("job completed", "job_id", jobID)
	}
	return job.Snapshot(), nil
}

// InputHash is the hex sha256 of the JSON encoding of input. Map keys are
// encoded in sorted order so equal inputs hash equally.
func InputHash(input map[string]any) (string, error) {
	b, err := json.Marshal(input)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// RiskLevel buckets a 0-100 score.
func RiskLevel(raw int) string {
	switch {
	case raw < 25:
		return "🟢 Low Risk"
	case raw < 50:
		return "🟡 Moderate Risk"
	case raw < 75:
		return "🟠 Elevated Risk"
	default:
		return "🔴 High Risk"
	}
}

func assessmentResult(j *domain.SimulatedJob) map[string]any {
	raw := 0
	if b, err := hex.DecodeString(j.Descriptor.InputHash); err == nil && len(b) > 0 {
		raw = int(b[0]) % 101
	}
	level := RiskLevel(raw)
	title := string(j.Request.RiskType)
	if f, ok := domain.FindFeature(domain.DefaultCatalog(), j.Request.RiskType); ok {
		title = f.Title
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# %s Report\n", title)
	fmt.Fprintf(&md, "## Summary\nOverall score %d/100 (%s).\n", raw, level)
	md.WriteString("### Inputs Reviewed\n")
	for _, k := range slices.Sorted(maps.Keys(j.Request.InputData)) {
		fmt.Fprintf(&md, "* %s: %v\n", k, j.Request.InputData[k])
	}
	fmt.Fprintf(&md, "### Agent\nAssessed by %s for job %s.\n", j.Descriptor.AgentIdentifier, j.Descriptor.JobID)

	return map[string]any{
		"identifier_from_purchaser": j.Request.IdentifierFromPurchaser,
		"risk_score_level":          level,
		"risk_score_percentage":     fmt.Sprintf("%d%%", raw),
		"risk_score_raw":            raw,
		"input_data":                j.Request.InputData,
		"detailed_assessment":       md.String(),
	}
}
