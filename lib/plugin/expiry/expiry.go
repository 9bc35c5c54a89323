package expiry

import (
	"encoding/json"
	"time"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/logger"
	"github.com/ValentinKolb/uKV/lib/plugin"
)

var log = logger.GetLogger("plugin/expiry")

// PluginName is the registered name of the expiry plugin.
const PluginName = "expiry"

// envelopeMarker identifies expiry envelopes in stored values.
const envelopeMarker = "expiry"

// envelope is the wrapper stored instead of the raw value. It is backend
// agnostic and round-trips through serialization unchanged.
type envelope struct {
	Marker    string `json:"__ukv"`
	Data      []byte `json:"data"`
	ExpiresAt int64  `json:"expiresAt"` // unix milliseconds, 0 = never
}

// Options configures the expiry plugin.
type Options struct {
	// DefaultTTL is applied to every write. Zero disables the plugin.
	DefaultTTL time.Duration

	// SweepInterval is the period of the background cleanup sweep. Zero
	// disables sweeping; expired keys are then only removed on read.
	SweepInterval time.Duration

	// Priority of the plugin, defaults to 300 so expiry wraps before the
	// compression and encryption layers.
	Priority int
}

// New creates the expiry plugin. Writes are wrapped in an envelope carrying
// the expiry deadline; reads of an expired key return not-found and delete
// the stored key.
func New(opts Options) plugin.Plugin {
	priority := opts.Priority
	if priority == 0 {
		priority = 300
	}

	e := &expiryPlugin{opts: opts, stop: make(chan struct{})}

	return plugin.Plugin{
		Name:     PluginName,
		Priority: priority,
		Enabled: func(driver.Config) bool {
			return opts.DefaultTTL > 0
		},

		OnInit:    e.onInit,
		OnDestroy: e.onDestroy,

		BeforeSet: e.beforeSet,
		AfterGet:  e.afterGet,

		BeforeSetItems: e.beforeSetItems,
		AfterGetItems:  e.afterGetItems,
	}
}

type expiryPlugin struct {
	opts Options
	stop chan struct{}
}

// --------------------------------------------------------------------------
// Envelope Handling
// --------------------------------------------------------------------------

func (e *expiryPlugin) wrap(value []byte) ([]byte, error) {
	env := envelope{
		Marker:    envelopeMarker,
		Data:      value,
		ExpiresAt: time.Now().Add(e.opts.DefaultTTL).UnixMilli(),
	}
	wrapped, err := json.Marshal(env)
	if err != nil {
		return nil, driver.WrapError(driver.RetCOperationFailed, "cannot encode expiry envelope", err)
	}
	return wrapped, nil
}

// unwrap returns the payload and whether it is expired. Values that are not
// expiry envelopes pass through unchanged.
func unwrap(value []byte) (payload []byte, expired bool, isEnvelope bool) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil || env.Marker != envelopeMarker {
		return value, false, false
	}
	if env.ExpiresAt != 0 && time.Now().UnixMilli() >= env.ExpiresAt {
		return nil, true, true
	}
	return env.Data, false, true
}

// --------------------------------------------------------------------------
// Hooks
// --------------------------------------------------------------------------

func (e *expiryPlugin) beforeSet(ctx *plugin.Context, key string, value []byte) (string, []byte, error) {
	if ctx.IsBatch() {
		return key, value, nil
	}
	wrapped, err := e.wrap(value)
	if err != nil {
		return "", nil, err
	}
	return key, wrapped, nil
}

func (e *expiryPlugin) afterGet(ctx *plugin.Context, key string, value []byte, found bool) ([]byte, bool, error) {
	if !found {
		return value, found, nil
	}
	payload, expired, _ := unwrap(value)
	if expired {
		// synthetic expiry: report not-found and drop the stored key
		if err := ctx.Instance.RemoveItem(key); err != nil {
			log.Warningf("cannot remove expired key %q: %v", key, err)
		}
		return nil, false, nil
	}
	return payload, true, nil
}

func (e *expiryPlugin) beforeSetItems(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
	wrapped := make([]driver.Item, len(items))
	for i, item := range items {
		w, err := e.wrap(item.Value)
		if err != nil {
			return nil, err
		}
		wrapped[i] = driver.Item{Key: item.Key, Value: w}
	}
	return wrapped, nil
}

func (e *expiryPlugin) afterGetItems(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
	var expiredKeys []string
	out := make([]driver.Item, len(items))
	for i, item := range items {
		if item.Value == nil {
			out[i] = item
			continue
		}
		payload, expired, _ := unwrap(item.Value)
		if expired {
			expiredKeys = append(expiredKeys, item.Key)
			out[i] = driver.Item{Key: item.Key, Value: nil}
			continue
		}
		out[i] = driver.Item{Key: item.Key, Value: payload}
	}
	for _, key := range expiredKeys {
		if err := ctx.Instance.RemoveItem(key); err != nil {
			log.Warningf("cannot remove expired key %q: %v", key, err)
		}
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Background Sweep
// --------------------------------------------------------------------------

func (e *expiryPlugin) onInit(ctx *plugin.Context) error {
	if e.opts.SweepInterval <= 0 {
		return nil
	}
	go e.sweeper(ctx.Instance)
	return nil
}

func (e *expiryPlugin) onDestroy(ctx *plugin.Context) error {
	close(e.stop)
	return nil
}

func (e *expiryPlugin) sweeper(inst plugin.Instance) {
	ticker := time.NewTicker(e.opts.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.sweep(inst)
		}
	}
}

// sweep reads every key through the pipeline; expired keys are removed by
// the read path itself. A per-key read failure is non-fatal, the sweep
// continues with the remaining keys.
func (e *expiryPlugin) sweep(inst plugin.Instance) {
	keys, err := inst.Keys()
	if err != nil {
		log.Warningf("sweep cannot list keys: %v", err)
		return
	}
	for _, key := range keys {
		if _, _, err := inst.GetItem(key); err != nil {
			log.Debugf("sweep read of %q failed: %v", key, err)
		}
	}
}
