package runtime

import (
	"fmt"
	"log/slog"

	"github.com/aretw0/sluice/pkg/domain"
)

// nodeIO is the processor's view of one cycle. It touches task-owned state
// and must only be used from the worker's execution context.
type nodeIO struct {
	w *Worker
}

func (io *nodeIO) Read(input string) (*domain.Token, error) {
	in, err := io.w.Input(input)
	if err != nil {
		return nil, err
	}
	if in.token == nil {
		return domain.NoMessage(), nil
	}
	return in.token, nil
}

func (io *nodeIO) Value(input string) any {
	tok, err := io.Read(input)
	if err != nil || tok.IsMarker() {
		return nil
	}
	return tok.Payload()
}

func (io *nodeIO) Write(output string, payload any) error {
	return io.WriteToken(output, domain.NewToken(payload))
}

func (io *nodeIO) WriteToken(output string, token *domain.Token) error {
	if token == nil {
		return fmt.Errorf("nil token written to %q", output)
	}
	o, err := io.w.Output(output)
	if err != nil {
		return err
	}
	o.buffer = token
	return nil
}

func (io *nodeIO) SetMultipart(output string, multipart, last bool) error {
	o, err := io.w.Output(output)
	if err != nil {
		return err
	}
	io.w.out.SetMultipart(o, multipart, last)
	return nil
}

func (io *nodeIO) Trigger(event string, payload any) error {
	e, err := io.w.Event(event)
	if err != nil {
		return err
	}
	e.Trigger(payload)
	return nil
}

func (io *nodeIO) Params() map[string]any { return io.w.Params() }

func (io *nodeIO) Logger() *slog.Logger { return io.w.logger }
