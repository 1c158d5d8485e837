package provision

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gabmerlin/saas-sub001/internal/domain"
	"github.com/gabmerlin/saas-sub001/internal/subdomain"
)

type fakeEdge struct {
	mu       sync.Mutex
	attached map[string]int
	err      error
	calls    []string
}

func newFakeEdge() *fakeEdge {
	return &fakeEdge{attached: map[string]int{}}
}

func (f *fakeEdge) AttachDomain(_ context.Context, fqdn string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "edge")
	if f.err != nil {
		return f.err
	}
	f.attached[fqdn]++
	return nil
}

type fakeZone struct {
	mu         sync.Mutex
	records    map[string][]int64
	nextID     int64
	creates    int
	updates    int
	refreshes  int
	refreshErr error
	calls      *fakeEdge
}

func newFakeZone(edge *fakeEdge) *fakeZone {
	return &fakeZone{records: map[string][]int64{}, nextID: 1, calls: edge}
}

func (f *fakeZone) ListCNAME(_ context.Context, sub string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.calls = append(f.calls.calls, "dns")
	return append([]int64(nil), f.records[sub]...), nil
}

func (f *fakeZone) CreateCNAME(_ context.Context, sub, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.records[sub] = append(f.records[sub], f.nextID)
	f.nextID++
	return nil
}

func (f *fakeZone) UpdateCNAME(_ context.Context, recordID int64, sub, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	return nil
}

func (f *fakeZone) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.refreshErr
}

func newTestOrchestrator(t *testing.T, edge *fakeEdge, zone *fakeZone) *Orchestrator {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	validator := subdomain.NewResolver([]string{"acme-platform.io"}, "dev", []string{"www", "api"})
	return NewOrchestrator("acme-platform.io", "cname.vercel-dns.com.", edge, zone, validator, node, zap.NewNop())
}

func TestProvision(t *testing.T) {
	edge := newFakeEdge()
	zone := newFakeZone(edge)
	o := newTestOrchestrator(t, edge, zone)

	fqdn, err := o.Provision(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "acme.acme-platform.io", fqdn)
	require.Equal(t, 1, edge.attached["acme.acme-platform.io"])
	require.Equal(t, 1, zone.creates)
	require.Equal(t, 1, zone.refreshes)

	// Host attachment happens before any DNS call.
	require.Equal(t, []string{"edge", "dns"}, edge.calls)
}

func TestProvisionIsIdempotent(t *testing.T) {
	edge := newFakeEdge()
	zone := newFakeZone(edge)
	o := newTestOrchestrator(t, edge, zone)

	for i := 0; i < 2; i++ {
		fqdn, err := o.Provision(context.Background(), "acme")
		require.NoError(t, err)
		require.Equal(t, "acme.acme-platform.io", fqdn)
	}

	// Exactly one record: the second pass updates in place.
	require.Len(t, zone.records["acme"], 1)
	require.Equal(t, 1, zone.creates)
	require.Equal(t, 1, zone.updates)
}

func TestProvisionInvalidSubdomain(t *testing.T) {
	edge := newFakeEdge()
	zone := newFakeZone(edge)
	o := newTestOrchestrator(t, edge, zone)

	for _, bad := range []string{"www", "ab", "-x-", "Bad_Name"} {
		_, err := o.Provision(context.Background(), bad)
		require.ErrorIs(t, err, domain.ErrInvalidSubdomain, "subdomain %q", bad)
	}
	require.Empty(t, edge.calls)
}

func TestProvisionEdgeFailureSkipsDNS(t *testing.T) {
	edge := newFakeEdge()
	edge.err = &domain.UpstreamError{Provider: "edgehost", StatusCode: http.StatusForbidden, Body: "bad token"}
	zone := newFakeZone(edge)
	o := newTestOrchestrator(t, edge, zone)

	_, err := o.Provision(context.Background(), "acme")
	require.Error(t, err)
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Contains(t, upstream.Body, "bad token")
	require.Equal(t, []string{"edge"}, edge.calls)
	require.Zero(t, zone.refreshes)
}

func TestProvisionRefreshFailureIsHardError(t *testing.T) {
	edge := newFakeEdge()
	zone := newFakeZone(edge)
	zone.refreshErr = errors.New("refresh unavailable")
	o := newTestOrchestrator(t, edge, zone)

	_, err := o.Provision(context.Background(), "acme")
	require.Error(t, err)
	require.Contains(t, err.Error(), "refresh")

	// The record exists; a retry after the provider recovers succeeds.
	zone.refreshErr = nil
	fqdn, err := o.Provision(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, "acme.acme-platform.io", fqdn)
	require.Len(t, zone.records["acme"], 1)
}

func TestProvisionSerializesPerSubdomain(t *testing.T) {
	edge := newFakeEdge()
	zone := newFakeZone(edge)
	o := newTestOrchestrator(t, edge, zone)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.Provision(context.Background(), "acme")
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Len(t, zone.records["acme"], 1, fmt.Sprintf("records: %v", zone.records))
}
