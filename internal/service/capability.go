package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"boostpanel/internal/cache"
	"boostpanel/internal/config"
	"boostpanel/internal/provider"
)

// delegationAvailableKey caches the probe's last verdict. The value expires
// so a dead probe degrades to "unavailable" instead of a stale yes.
const delegationAvailableKey = "delegation.available"

// DelegationProbe pings the bulk aggregator in the background and publishes
// reachability into the cache. The reconciler consults the cached flag
// instead of paying a connect timeout on every cycle.
type DelegationProbe struct {
	Logger *zap.Logger
	Config config.DelegationProbeConfig
	Flags  *SystemSettingsService
	Cache  cache.Store
	Client *provider.BulkClient
}

func (p *DelegationProbe) Run(ctx context.Context) error {
	if p == nil || p.Cache == nil || p.Client == nil {
		return nil
	}
	interval := p.Config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	// Probe once on start.
	p.probeOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			p.probeOnce(ctx)
		}
	}
}

func (p *DelegationProbe) probeOnce(ctx context.Context) {
	if p.Flags != nil && !p.Flags.IsEnabled(ctx, FeatureDelegationProbe, true) {
		return
	}
	timeout := p.Config.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	available := "1"
	if err := p.Client.Ping(pctx); err != nil {
		available = "0"
		if p.Logger != nil {
			p.Logger.Debug("delegation probe failed", zap.Error(err))
		}
	}

	interval := p.Config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	if err := p.Cache.Set(ctx, delegationAvailableKey, []byte(available), 3*interval); err != nil && p.Logger != nil {
		p.Logger.Warn("delegation flag cache write failed", zap.Error(err))
	}
}

// DelegationAvailable reads the probe's cached verdict. Missing or expired
// means unavailable.
func DelegationAvailable(ctx context.Context, store cache.Store) bool {
	if store == nil {
		return false
	}
	v, ok, err := store.Get(ctx, delegationAvailableKey)
	if err != nil || !ok {
		return false
	}
	return string(v) == "1"
}
