package inference

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brensch/gomokuzero/executor/convert"
	"github.com/brensch/gomokuzero/game"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	InputSize  = convert.FloatSize
	PolicySize = game.PolicySize
	ValueSize  = 1
)

const (
	DefaultBatchSize    = 64
	DefaultBatchTimeout = 1 * time.Millisecond
)

var ErrClosed = errors.New("onnx client closed")

type OnnxClientConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	// SharedLibrary overrides ORT_SHARED_LIBRARY_PATH and the working
	// directory search for libonnxruntime.
	SharedLibrary string
	// ChannelsFirst feeds the model [B, C, H, W] instead of [B, H, W, C].
	ChannelsFirst bool
	// ApplySoftmax treats the policy output as logits.
	ApplySoftmax bool
	DisableCUDA  bool
}

// RuntimeStats is a snapshot of batching behaviour.
type RuntimeStats struct {
	TotalBatches  int64
	TotalItems    int64
	TotalRunNanos int64
	LastBatchSize int64
	QueueLen      int
	AvgBatchSize  float64
	AvgRunMs      float64
}

type inferenceRequest struct {
	input    []float32
	respChan chan inferenceResponse
}

type inferenceResponse struct {
	policy []float32
	value  float32
	err    error
}

// OnnxClient implements the inference engine using ONNX Runtime with batching.
// Predict is safe for concurrent use; concurrent callers share batches.
type OnnxClient struct {
	session      *ort.DynamicAdvancedSession
	requestsChan chan inferenceRequest
	cfg          OnnxClientConfig

	done      chan struct{}
	closeOnce sync.Once
	loopDone  chan struct{}

	batches   atomic.Int64
	items     atomic.Int64
	runNanos  atomic.Int64
	lastBatch atomic.Int64
}

var ortInitOnce sync.Once
var ortInitErr error

func NewOnnxClient(modelPath string) (*OnnxClient, error) {
	return NewOnnxClientWithConfig(modelPath, OnnxClientConfig{BatchSize: DefaultBatchSize, BatchTimeout: DefaultBatchTimeout})
}

func NewOnnxClientWithConfig(modelPath string, cfg OnnxClientConfig) (*OnnxClient, error) {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}

	if err := initEnvironment(cfg.SharedLibrary); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	inputs := []string{"input"}
	outputs := []string{"policy", "value"}

	// One thread per session; parallelism comes from batching and the pool.
	options.SetIntraOpNumThreads(1)
	options.SetInterOpNumThreads(1)

	if !cfg.DisableCUDA {
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err == nil {
			defer cudaOptions.Destroy()
			if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
				log.Warn().Err(err).Msg("failed to append CUDA provider, using CPU")
			} else {
				log.Info().Msg("CUDA provider enabled")
			}
		} else {
			log.Warn().Err(err).Msg("CUDA provider unavailable, using CPU")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	client := &OnnxClient{
		session:      session,
		cfg:          cfg,
		requestsChan: make(chan inferenceRequest, cfg.BatchSize*2),
		done:         make(chan struct{}),
		loopDone:     make(chan struct{}),
	}

	go client.batchLoop()

	log.Debug().
		Str("model", modelPath).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Bool("channels_first", cfg.ChannelsFirst).
		Msg("onnx session ready")

	return client, nil
}

func initEnvironment(sharedLibrary string) error {
	switch {
	case sharedLibrary != "":
		ort.SetSharedLibraryPath(sharedLibrary)
	case os.Getenv("ORT_SHARED_LIBRARY_PATH") != "":
		ort.SetSharedLibraryPath(os.Getenv("ORT_SHARED_LIBRARY_PATH"))
	case runtime.GOOS == "linux":
		ensureLinuxLibraryPath()
		cwd, _ := os.Getwd()
		candidates := []string{
			"libonnxruntime.so",
			"libonnxruntime.so.1",
			"libonnxruntime.so.1.23.2",
		}
		for _, name := range candidates {
			abs := filepath.Join(cwd, name)
			if _, err := os.Stat(abs); err == nil {
				ort.SetSharedLibraryPath(abs)
				break
			}
		}
	}

	ortInitOnce.Do(func() {
		ortInitErr = ort.InitializeEnvironment()
	})
	if ortInitErr != nil {
		return fmt.Errorf("failed to init ort: %w", ortInitErr)
	}
	return nil
}

// ensureLinuxLibraryPath prepends CUDA libraries installed into a local
// .venv by pip to LD_LIBRARY_PATH.
func ensureLinuxLibraryPath() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	candidateDirs := []string{cwd}
	patterns := []string{
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "nvidia", "*", "lib"),
		filepath.Join(cwd, ".venv", "lib", "python*", "site-packages", "torch", "lib"),
	}
	for _, pat := range patterns {
		matches, _ := filepath.Glob(pat)
		candidateDirs = append(candidateDirs, matches...)
	}

	existing := os.Getenv("LD_LIBRARY_PATH")
	existingSet := map[string]bool{}
	for _, p := range strings.Split(existing, ":") {
		if p != "" {
			existingSet[p] = true
		}
	}

	toAdd := make([]string, 0, len(candidateDirs))
	for _, d := range candidateDirs {
		if existingSet[d] {
			continue
		}
		if st, err := os.Stat(d); err == nil && st.IsDir() {
			toAdd = append(toAdd, d)
		}
	}
	if len(toAdd) == 0 {
		return
	}

	newVal := strings.Join(toAdd, ":")
	if existing != "" {
		newVal = newVal + ":" + existing
	}
	_ = os.Setenv("LD_LIBRARY_PATH", newVal)
}

// Close stops the batching loop and destroys the session. Pending and later
// Predict calls fail with ErrClosed.
func (c *OnnxClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		<-c.loopDone
		err = c.session.Destroy()
	})
	return err
}

// Predict queues one encoded position and blocks until its batch has run.
func (c *OnnxClient) Predict(input []float32) ([]float32, float32, error) {
	if len(input) != InputSize {
		return nil, 0, fmt.Errorf("input has %d floats, want %d", len(input), InputSize)
	}

	// input belongs to the caller and is recycled as soon as we return.
	owned := make([]float32, InputSize)
	if c.cfg.ChannelsFirst {
		convert.HWCToCHW(owned, input)
	} else {
		copy(owned, input)
	}

	respChan := make(chan inferenceResponse, 1)
	select {
	case c.requestsChan <- inferenceRequest{input: owned, respChan: respChan}:
	case <-c.done:
		return nil, 0, ErrClosed
	}

	select {
	case resp := <-respChan:
		return resp.policy, resp.value, resp.err
	case <-c.done:
		return nil, 0, ErrClosed
	}
}

func (c *OnnxClient) Stats() RuntimeStats {
	st := RuntimeStats{
		TotalBatches:  c.batches.Load(),
		TotalItems:    c.items.Load(),
		TotalRunNanos: c.runNanos.Load(),
		LastBatchSize: c.lastBatch.Load(),
		QueueLen:      len(c.requestsChan),
	}
	return st.withAverages()
}

func (st RuntimeStats) withAverages() RuntimeStats {
	if st.TotalBatches > 0 {
		st.AvgBatchSize = float64(st.TotalItems) / float64(st.TotalBatches)
		st.AvgRunMs = float64(st.TotalRunNanos) / 1e6 / float64(st.TotalBatches)
	}
	return st
}

func (c *OnnxClient) batchLoop() {
	defer close(c.loopDone)

	batchInput := make([]float32, 0, c.cfg.BatchSize*InputSize)
	requests := make([]inferenceRequest, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.failBatch(requests, ErrClosed)
			return
		case req := <-c.requestsChan:
			requests = append(requests, req)
			batchInput = append(batchInput, req.input...)

			if len(requests) >= c.cfg.BatchSize {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		case <-ticker.C:
			if len(requests) > 0 {
				c.runBatch(requests, batchInput)
				requests = requests[:0]
				batchInput = batchInput[:0]
			}
		}
	}
}

func (c *OnnxClient) inputShape(batch int64) ort.Shape {
	if c.cfg.ChannelsFirst {
		return ort.NewShape(batch, convert.Channels, convert.Height, convert.Width)
	}
	return ort.NewShape(batch, convert.Height, convert.Width, convert.Channels)
}

func (c *OnnxClient) runBatch(requests []inferenceRequest, batchInput []float32) {
	currentBatchSize := int64(len(requests))
	start := time.Now()

	inputTensor, err := ort.NewTensor(c.inputShape(currentBatchSize), batchInput)
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer inputTensor.Destroy()

	policyTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, PolicySize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer policyTensor.Destroy()

	valueTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(currentBatchSize, ValueSize))
	if err != nil {
		c.failBatch(requests, err)
		return
	}
	defer valueTensor.Destroy()

	err = c.session.Run([]ort.Value{inputTensor}, []ort.Value{policyTensor, valueTensor})
	if err != nil {
		c.failBatch(requests, err)
		return
	}

	c.batches.Add(1)
	c.items.Add(currentBatchSize)
	c.runNanos.Add(time.Since(start).Nanoseconds())
	c.lastBatch.Store(currentBatchSize)

	policyData := policyTensor.GetData()
	valueData := valueTensor.GetData()

	for i, req := range requests {
		policy := make([]float32, PolicySize)
		copy(policy, policyData[i*PolicySize:(i+1)*PolicySize])
		if c.cfg.ApplySoftmax {
			softmax(policy)
		}

		req.respChan <- inferenceResponse{
			policy: policy,
			value:  valueData[i*ValueSize],
		}
	}
}

func (c *OnnxClient) failBatch(requests []inferenceRequest, err error) {
	for _, req := range requests {
		req.respChan <- inferenceResponse{err: err}
	}
}

// softmax converts logits to probabilities in place.
func softmax(logits []float32) {
	if len(logits) == 0 {
		return
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		if v > maxV {
			maxV = v
		}
	}
	sum := float32(0)
	for i, v := range logits {
		e := float32(math.Exp(float64(v - maxV)))
		logits[i] = e
		sum += e
	}
	if sum > 0 {
		inv := 1 / sum
		for i := range logits {
			logits[i] *= inv
		}
	}
}
