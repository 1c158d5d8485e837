package provision

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/domain"
	"github.com/gabmerlin/saas-sub001/internal/metrics"
)

// EdgeAttacher registers a fully-qualified domain with the hosting project.
type EdgeAttacher interface {
	AttachDomain(ctx context.Context, fqdn string) error
}

// ZoneManager ensures a CNAME record exists and is propagated.
type ZoneManager interface {
	ListCNAME(ctx context.Context, sub string) ([]int64, error)
	CreateCNAME(ctx context.Context, sub, target string) error
	UpdateCNAME(ctx context.Context, recordID int64, sub, target string) error
	Refresh(ctx context.Context) error
}

// Validator checks a requested subdomain against the identity grammar.
type Validator interface {
	ValidateKey(sub string) error
}

// Orchestrator runs the two-provider provisioning workflow. Calls for the
// same subdomain are serialized; the whole flow is safe to retry because both
// providers treat "already exists" as success.
type Orchestrator struct {
	rootZone  string
	dnsTarget string
	edge      EdgeAttacher
	zone      ZoneManager
	validator Validator
	node      *snowflake.Node
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewOrchestrator wires the provisioning workflow.
func NewOrchestrator(rootZone, dnsTarget string, edge EdgeAttacher, zone ZoneManager, validator Validator, node *snowflake.Node, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.L()
	}
	return &Orchestrator{
		rootZone:  strings.ToLower(strings.TrimSpace(rootZone)),
		dnsTarget: dnsTarget,
		edge:      edge,
		zone:      zone,
		validator: validator,
		node:      node,
		logger:    logger,
		locks:     map[string]*sync.Mutex{},
	}
}

// Provision registers sub with the edge host and ensures its CNAME record,
// strictly in that order so DNS never points at an unregistered destination.
// Partial failure after the host attachment is safe: re-invoking with the
// same subdomain completes the remaining step.
func (o *Orchestrator) Provision(ctx context.Context, sub string) (string, error) {
	cleaned := strings.ToLower(strings.TrimSpace(sub))
	if err := o.validator.ValidateKey(cleaned); err != nil {
		return "", err
	}

	lock := o.subdomainLock(cleaned)
	lock.Lock()
	defer lock.Unlock()

	job := domain.ProvisioningJob{
		ID:        o.node.Generate().String(),
		Subdomain: cleaned,
		FQDN:      cleaned + "." + o.rootZone,
	}
	logger := o.logger.With(zap.String("job_id", job.ID), zap.String("fqdn", job.FQDN))

	if err := o.edge.AttachDomain(ctx, job.FQDN); err != nil {
		logger.Error("edge host attachment failed", zap.Error(err))
		metrics.ProvisionOutcome("edge_failed")
		return "", fmt.Errorf("attach edge host: %w", err)
	}
	logger.Info("edge host attached")

	if err := o.ensureCNAME(ctx, job.Subdomain); err != nil {
		logger.Error("dns record failed", zap.Error(err))
		metrics.ProvisionOutcome("dns_failed")
		return "", err
	}

	if err := o.zone.Refresh(ctx); err != nil {
		logger.Error("zone refresh failed", zap.Error(err))
		metrics.ProvisionOutcome("refresh_failed")
		return "", fmt.Errorf("refresh zone: %w", err)
	}

	logger.Info("subdomain provisioned")
	metrics.ProvisionOutcome("ok")
	return job.FQDN, nil
}

// ensureCNAME lists existing records first and updates in place rather than
// creating duplicates.
func (o *Orchestrator) ensureCNAME(ctx context.Context, sub string) error {
	ids, err := o.zone.ListCNAME(ctx, sub)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	if len(ids) == 0 {
		if err := o.zone.CreateCNAME(ctx, sub, o.dnsTarget); err != nil {
			return fmt.Errorf("create record: %w", err)
		}
		return nil
	}
	if err := o.zone.UpdateCNAME(ctx, ids[0], sub, o.dnsTarget); err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return nil
}

func (o *Orchestrator) subdomainLock(sub string) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	lock, ok := o.locks[sub]
	if !ok {
		lock = &sync.Mutex{}
		o.locks[sub] = lock
	}
	return lock
}
