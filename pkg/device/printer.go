package device

import (
	"context"

	"github.com/google/uuid"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// Paper thresholds, in percent.
const (
	PaperFull         = 100
	PaperLowThreshold = 10
)

// PrinterState is the operational state of a receipt printer.
type PrinterState struct {
	PaperLevel int  `json:"paperLevel"`
	CoverOpen  bool `json:"coverOpen"`
	Online     bool `json:"online"`
}

// PrintJob describes a receipt to print.
type PrintJob struct {
	Text   string `json:"text"`
	Copies int    `json:"copies,omitempty"`
}

// PrintResult is returned by Print.
type PrintResult struct {
	Completion
	Success bool   `json:"success"`
	PrintID string `json:"printId"`
}

// Printer simulates a receipt printer.
type Printer struct {
	*base
	st PrinterState
}

// NewPrinter creates a disconnected printer with a full paper roll.
func NewPrinter(id string, opts ...Option) (*Printer, error) {
	b, err := newBase(id, model.Printer, opts)
	if err != nil {
		return nil, err
	}
	p := &Printer{base: b}
	b.v = p
	p.resetState()
	return p, nil
}

func (p *Printer) resetState() {
	p.st = PrinterState{PaperLevel: PaperFull, Online: true}
}

func (p *Printer) snapshot() any {
	return p.st
}

// State returns the printer's operational state.
func (p *Printer) State() PrinterState {
	var st PrinterState
	p.read(func() { st = p.st })
	return st
}

// PaperLevel returns the remaining paper in percent.
func (p *Printer) PaperLevel() int {
	return p.State().PaperLevel
}

// Print prints a job. Each copy consumes one percent of the paper roll.
func (p *Printer) Print(ctx context.Context, job PrintJob) (PrintResult, error) {
	oc, err := p.begin(OpPrint)
	if err != nil {
		return PrintResult{}, err
	}
	if job.Copies <= 0 {
		job.Copies = 1
	}

	st := p.State()
	switch {
	case !st.Online:
		return PrintResult{}, p.refuse(OpPrint, ErrTypePrinterOffline, model.EventPrintError)
	case st.CoverOpen:
		return PrintResult{}, p.refuse(OpPrint, ErrTypeCoverOpen, model.EventPrintError)
	case st.PaperLevel <= 0:
		return PrintResult{}, p.refuse(OpPrint, ErrTypePaperOut, model.EventPrintError)
	}

	printID := uuid.NewString()
	p.emit(model.EventPrintStarted, model.Payload{"printId": printID, "text": job.Text, "copies": job.Copies})

	if err := p.await(ctx, oc, OpPrint, model.EventPrintError); err != nil {
		return PrintResult{}, err
	}

	var events []emission
	ok := p.commit(oc, OpPrint, func() {
		prev := p.st.PaperLevel
		p.st.PaperLevel = max(prev-job.Copies, 0)
		events = append(events, emission{model.EventPrintComplete, model.Payload{
			"success":    true,
			"printId":    printID,
			"copies":     job.Copies,
			"paperLevel": p.st.PaperLevel,
		}})
		switch {
		case p.st.PaperLevel == 0:
			events = append(events, emission{model.EventPaperOut, model.Payload{"paperLevel": 0}})
		case prev > PaperLowThreshold && p.st.PaperLevel <= PaperLowThreshold:
			events = append(events, emission{model.EventPaperLow, model.Payload{"paperLevel": p.st.PaperLevel}})
		}
	})
	if !ok {
		return PrintResult{Completion: Completion{Stale: true}, PrintID: printID}, nil
	}
	p.emitAll(events)
	return PrintResult{Success: true, PrintID: printID}, nil
}

func (p *Printer) external(eventType string, data map[string]any) ([]emission, bool) {
	switch eventType {
	case "paperOut":
		p.st.PaperLevel = 0
		return []emission{{model.EventPaperOut, model.Payload{"paperLevel": 0}}}, true
	case "paperLow":
		level := PaperLowThreshold
		if n, ok := numberArg(data, "level"); ok {
			level = int(n)
		}
		p.st.PaperLevel = min(max(level, 0), PaperFull)
		return []emission{{model.EventPaperLow, model.Payload{"paperLevel": p.st.PaperLevel}}}, true
	case "paperLoaded", "refillPaper":
		p.st.PaperLevel = PaperFull
		return []emission{{model.EventPaperLoaded, model.Payload{"paperLevel": PaperFull}}}, true
	case "coverOpen":
		p.st.CoverOpen = true
		return []emission{{model.EventCoverOpened, model.Payload{}}}, true
	case "coverClosed":
		p.st.CoverOpen = false
		return []emission{{model.EventCoverClosed, model.Payload{}}}, true
	case "offline":
		p.st.Online = false
		return []emission{{model.EventPrinterOffline, model.Payload{}}}, true
	case "online":
		p.st.Online = true
		return []emission{{model.EventPrinterOnline, model.Payload{}}}, true
	}
	return nil, false
}
