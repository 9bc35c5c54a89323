package compress

import (
	"encoding/json"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/ValentinKolb/uKV/lib/plugin"
	"github.com/klauspost/compress/s2"
)

// PluginName is the registered name of the compression plugin.
const PluginName = "compress"

// envelopeMarker identifies compression envelopes in stored values.
const envelopeMarker = "compress"

// codec is the only compression codec the plugin writes.
const codec = "s2"

// defaultThreshold is the minimum value size worth compressing. Smaller
// values are stored raw, the envelope overhead would outweigh the saving.
const defaultThreshold = 128

// envelope is the wrapper stored instead of the raw value.
type envelope struct {
	Marker string `json:"__ukv"`
	Codec  string `json:"codec"`
	Data   []byte `json:"data"`
}

// Options configures the compression plugin.
type Options struct {
	// Threshold is the minimum value size in bytes to compress.
	// Defaults to 128.
	Threshold int

	// Priority of the plugin, defaults to 200 so compression runs after
	// the expiry wrap and before the encryption wrap (compressing
	// ciphertext gains nothing).
	Priority int
}

// New creates the compression plugin.
func New(opts Options) plugin.Plugin {
	if opts.Threshold <= 0 {
		opts.Threshold = defaultThreshold
	}
	priority := opts.Priority
	if priority == 0 {
		priority = 200
	}

	c := &compressPlugin{opts: opts}

	return plugin.Plugin{
		Name:     PluginName,
		Priority: priority,

		BeforeSet: c.beforeSet,
		AfterGet:  c.afterGet,

		BeforeSetItems: c.beforeSetItems,
		AfterGetItems:  c.afterGetItems,
	}
}

type compressPlugin struct {
	opts Options
}

// --------------------------------------------------------------------------
// Envelope Handling
// --------------------------------------------------------------------------

func (c *compressPlugin) deflate(value []byte) ([]byte, error) {
	if len(value) < c.opts.Threshold {
		return value, nil
	}
	env := envelope{
		Marker: envelopeMarker,
		Codec:  codec,
		Data:   s2.Encode(nil, value),
	}
	wrapped, err := json.Marshal(env)
	if err != nil {
		return nil, driver.WrapError(driver.RetCOperationFailed, "cannot encode compression envelope", err)
	}
	return wrapped, nil
}

func inflate(value []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil || env.Marker != envelopeMarker {
		return value, nil
	}
	if env.Codec != codec {
		return nil, driver.NewError(driver.RetCDeserializationFailed, "unknown codec in stored envelope")
	}
	plain, err := s2.Decode(nil, env.Data)
	if err != nil {
		return nil, driver.WrapError(driver.RetCDeserializationFailed, "cannot decompress stored envelope", err)
	}
	return plain, nil
}

// --------------------------------------------------------------------------
// Hooks
// --------------------------------------------------------------------------

func (c *compressPlugin) beforeSet(ctx *plugin.Context, key string, value []byte) (string, []byte, error) {
	if ctx.IsBatch() {
		return key, value, nil
	}
	deflated, err := c.deflate(value)
	if err != nil {
		return "", nil, err
	}
	return key, deflated, nil
}

func (c *compressPlugin) afterGet(ctx *plugin.Context, key string, value []byte, found bool) ([]byte, bool, error) {
	if !found {
		return value, found, nil
	}
	inflated, err := inflate(value)
	if err != nil {
		return nil, false, err
	}
	return inflated, true, nil
}

func (c *compressPlugin) beforeSetItems(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
	out := make([]driver.Item, len(items))
	for i, item := range items {
		deflated, err := c.deflate(item.Value)
		if err != nil {
			return nil, err
		}
		out[i] = driver.Item{Key: item.Key, Value: deflated}
	}
	return out, nil
}

func (c *compressPlugin) afterGetItems(ctx *plugin.Context, items []driver.Item) ([]driver.Item, error) {
	out := make([]driver.Item, len(items))
	for i, item := range items {
		if item.Value == nil {
			out[i] = item
			continue
		}
		inflated, err := inflate(item.Value)
		if err != nil {
			return nil, err
		}
		out[i] = driver.Item{Key: item.Key, Value: inflated}
	}
	return out, nil
}
