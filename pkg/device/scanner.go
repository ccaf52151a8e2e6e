package device

import (
	"context"
	"strconv"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

// BarcodeFormat names the symbology of a scanned barcode.
const BarcodeFormat = "EAN13"

// ScannerState is the operational state of a barcode scanner.
type ScannerState struct {
	Scanning    bool   `json:"scanning"`
	TorchOn     bool   `json:"torchOn"`
	LastBarcode string `json:"lastBarcode,omitempty"`
}

// ScanResult is returned by Scan.
type ScanResult struct {
	Completion
	Barcode string `json:"barcode"`
	Format  string `json:"format"`
}

// Scanner simulates a barcode scanner.
type Scanner struct {
	*base
	st ScannerState
}

// NewScanner creates a disconnected, idle scanner.
func NewScanner(id string, opts ...Option) (*Scanner, error) {
	b, err := newBase(id, model.Scanner, opts)
	if err != nil {
		return nil, err
	}
	s := &Scanner{base: b}
	b.v = s
	s.resetState()
	return s, nil
}

func (s *Scanner) resetState() {
	s.st = ScannerState{}
}

func (s *Scanner) snapshot() any {
	return s.st
}

// State returns the scanner's operational state.
func (s *Scanner) State() ScannerState {
	var st ScannerState
	s.read(func() { st = s.st })
	return st
}

// StartScanning arms the scanner.
func (s *Scanner) StartScanning(ctx context.Context) (Completion, error) {
	oc, err := s.begin(OpStartScanning)
	if err != nil {
		return Completion{}, err
	}
	if err := s.await(ctx, oc, OpStartScanning, model.EventScanError); err != nil {
		return Completion{}, err
	}
	if !s.commit(oc, OpStartScanning, func() { s.st.Scanning = true }) {
		return Completion{Stale: true}, nil
	}
	s.emit(model.EventScanStarted, model.Payload{})
	return Completion{}, nil
}

// StopScanning disarms the scanner.
func (s *Scanner) StopScanning(ctx context.Context) (Completion, error) {
	oc, err := s.begin(OpStopScanning)
	if err != nil {
		return Completion{}, err
	}
	if err := s.await(ctx, oc, OpStopScanning, model.EventScanError); err != nil {
		return Completion{}, err
	}
	if !s.commit(oc, OpStopScanning, func() { s.st.Scanning = false }) {
		return Completion{Stale: true}, nil
	}
	s.emit(model.EventScanStopped, model.Payload{})
	return Completion{}, nil
}

// Scan reads a barcode. The scanner must be scanning.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	oc, err := s.begin(OpScan)
	if err != nil {
		return ScanResult{}, err
	}
	if !s.State().Scanning {
		return ScanResult{}, s.refuse(OpScan, ErrTypeNotScanning, model.EventScanError)
	}
	if err := s.await(ctx, oc, OpScan, model.EventScanError); err != nil {
		return ScanResult{}, err
	}

	barcode := s.randomEAN13()
	if !s.commit(oc, OpScan, func() { s.st.LastBarcode = barcode }) {
		return ScanResult{Completion: Completion{Stale: true}}, nil
	}
	s.emit(model.EventBarcodeScanned, model.Payload{"barcode": barcode, "format": BarcodeFormat})
	return ScanResult{Barcode: barcode, Format: BarcodeFormat}, nil
}

// SetTorch switches the illumination LED.
func (s *Scanner) SetTorch(ctx context.Context, on bool) (Completion, error) {
	oc, err := s.begin(OpTorch)
	if err != nil {
		return Completion{}, err
	}
	if err := s.await(ctx, oc, OpTorch, model.EventScanError); err != nil {
		return Completion{}, err
	}
	if !s.commit(oc, OpTorch, func() { s.st.TorchOn = on }) {
		return Completion{Stale: true}, nil
	}
	s.emit(model.EventTorchChanged, model.Payload{"torchOn": on})
	return Completion{}, nil
}

func (s *Scanner) external(eventType string, data map[string]any) ([]emission, bool) {
	switch eventType {
	case "barcodeScanned", "scan":
		barcode := stringArg(data, "barcode", "")
		if barcode == "" {
			barcode = s.randomEAN13()
		}
		s.st.LastBarcode = barcode
		return []emission{{model.EventBarcodeScanned, model.Payload{
			"barcode": barcode,
			"format":  stringArg(data, "format", BarcodeFormat),
		}}}, true
	case "torchOn", "torchOff":
		s.st.TorchOn = eventType == "torchOn"
		return []emission{{model.EventTorchChanged, model.Payload{"torchOn": s.st.TorchOn}}}, true
	}
	return nil, false
}

// randomEAN13 generates a barcode with a valid check digit.
func (s *Scanner) randomEAN13() string {
	digits := make([]byte, 0, 13)
	sum := 0
	for i := 0; i < 12; i++ {
		d := s.intn(10)
		if i%2 == 1 {
			sum += 3 * d
		} else {
			sum += d
		}
		digits = append(digits, byte('0'+d))
	}
	check := (10 - sum%10) % 10
	return string(digits) + strconv.Itoa(check)
}
