// Package oracle implements a thin client to the external learning-model
// process (the "Oracle"), accessed over local stream sockets. The Oracle
// itself is an opaque learner out of scope for this module;
// this package only implements the bidirectional wire protocol: a
// training channel for observation batches, and a prediction channel for
// one-shot inferences and scheduling queries.
package oracle

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
)

// Client is a connected pair of channels to the Oracle. Every request is
// followed by exactly one fixed-size response; no timeouts are used, the
// Oracle is assumed responsive. A per-channel mutex keeps each channel's
// request/response pairs whole when callers share the client across
// goroutines (the Monitor's training round trips and the Queue Manager's
// workload-boundary markers ride the same training socket).
type Client struct {
	trainMu    sync.Mutex
	training   net.Conn
	predMu     sync.Mutex
	prediction net.Conn
	numKernels int
	powerWidth int
}

// Dial opens both channels as Unix-domain stream sockets addressed by
// filesystem path.
func Dial(trainingPath, predictionPath string, numKernels, powerWidth int) (*Client, error) {
	training, err := net.Dial("unix", trainingPath)
	if err != nil {
		return nil, fmt.Errorf("oracle: dial training channel: %w", err)
	}
	prediction, err := net.Dial("unix", predictionPath)
	if err != nil {
		training.Close()
		return nil, fmt.Errorf("oracle: dial prediction channel: %w", err)
	}
	return &Client{
		training:   training,
		prediction: prediction,
		numKernels: numKernels,
		powerWidth: powerWidth,
	}, nil
}

// NewClient wraps already-established connections (used by tests with
// net.Pipe and by deployments that multiplex the channels differently).
func NewClient(training, prediction net.Conn, numKernels, powerWidth int) *Client {
	return &Client{training: training, prediction: prediction, numKernels: numKernels, powerWidth: powerWidth}
}

// Handshake sends the RAM-buffer-sharing handshake on the training channel
// and returns the Oracle's ack; only used on configurations
// where the downstream observation sink shares RAM buffers with the
// Oracle.
func (c *Client) Handshake(nMeas uint32) (int32, error) {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()
	if err := writeU32(c.training, nMeas); err != nil {
		return 0, fatal("handshake write", err)
	}
	ack, err := readI32(c.training)
	if err != nil {
		return 0, fatal("handshake read", err)
	}
	return ack, nil
}

// Operate commands a train-or-test pass (the Oracle's own choice) over
// the last n observations and returns the advised idle-observation count.
// This is the form the Monitor drives every training phase.
func (c *Client) Operate(n uint32) (int32, error) {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()
	if err := writeU32(c.training, EncodeCommand(Command{Kind: CommandTest, N: n})); err != nil {
		return 0, fatal("operate write", err)
	}
	idleObs, err := readI32(c.training)
	if err != nil {
		return 0, fatal("operate read", err)
	}
	return idleObs, nil
}

// Train commands an explicit training pass over the last n observations
// (top command bit set) and returns the Oracle's per-batch error metrics.
func (c *Client) Train(n uint32) (Metrics, error) {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()
	if err := writeU32(c.training, EncodeCommand(Command{Kind: CommandTrain, N: n})); err != nil {
		return Metrics{}, fatal("train write", err)
	}
	m, err := readMetrics(c.training, c.powerWidth)
	if err != nil {
		return Metrics{}, fatal("train metrics read", err)
	}
	return m, nil
}

// Test commands an explicit test pass over the last n observations (top
// command bit clear) and returns the Oracle's per-batch error metrics.
func (c *Client) Test(n uint32) (Metrics, error) {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()
	if err := writeU32(c.training, EncodeCommand(Command{Kind: CommandTest, N: n})); err != nil {
		return Metrics{}, fatal("test write", err)
	}
	m, err := readMetrics(c.training, c.powerWidth)
	if err != nil {
		return Metrics{}, fatal("test metrics read", err)
	}
	return m, nil
}

// WorkloadBoundary marks the end of a workload on the training channel.
// Like shutdown it elicits no response.
func (c *Client) WorkloadBoundary() error {
	c.trainMu.Lock()
	defer c.trainMu.Unlock()
	if err := writeU32(c.training, EncodeCommand(Command{Kind: CommandWorkloadBoundary})); err != nil {
		return fatal("workload boundary write", err)
	}
	return nil
}

// Predict sends a predict{} query and returns the Oracle's prediction.
// Features.Main must not be the scheduling sentinel.
func (c *Client) Predict(f Features) (Prediction, error) {
	if f.IsSchedulingRequest() {
		panic("oracle: use Schedule for scheduling queries")
	}
	c.predMu.Lock()
	defer c.predMu.Unlock()
	if err := writeFeatures(c.prediction, f); err != nil {
		return Prediction{}, fatal("predict write", err)
	}
	p, err := readPrediction(c.prediction, c.powerWidth)
	if err != nil {
		return Prediction{}, fatal("predict read", err)
	}
	return p, nil
}

// Schedule sends a schedule{} query (Features.Main forced to the
// scheduling sentinel) and returns the per-kernel CU recommendation.
func (c *Client) Schedule(f Features) (Decision, error) {
	f.Main = scheduleSentinel
	c.predMu.Lock()
	defer c.predMu.Unlock()
	if err := writeFeatures(c.prediction, f); err != nil {
		return Decision{}, fatal("schedule write", err)
	}
	d, err := readDecision(c.prediction, c.numKernels)
	if err != nil {
		return Decision{}, fatal("schedule read", err)
	}
	return d, nil
}

// Close notifies the Oracle with the shutdown message on each channel
// before closing the sockets.
func (c *Client) Close() error {
	c.trainMu.Lock()
	if err := writeU32(c.training, EncodeCommand(Command{Kind: CommandShutdown})); err != nil {
		logrus.Warnf("oracle: shutdown write on training channel: %v", err)
	}
	c.trainMu.Unlock()
	c.predMu.Lock()
	if _, err := c.prediction.Write([]byte{0}); err != nil {
		logrus.Warnf("oracle: shutdown write on prediction channel: %v", err)
	}
	c.predMu.Unlock()
	trainErr := c.training.Close()
	predErr := c.prediction.Close()
	if trainErr != nil {
		return trainErr
	}
	return predErr
}

// fatal wraps a socket I/O error as a FatalError: any socket read/write
// error during operation is fatal to the phase and the process exits; the
// caller at the top-level command is responsible for converting this into
// an exit.
func fatal(stage string, err error) error {
	return &FatalError{Stage: stage, Err: err}
}

// FatalError marks an Oracle protocol error (short read or write) as
// unrecoverable.
type FatalError struct {
	Stage string
	Err   error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("oracle: fatal protocol error at %s: %v", e.Stage, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, binary.LittleEndian, v)
}

func readI32(r io.Reader) (int32, error) {
	var v int32
	if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}
