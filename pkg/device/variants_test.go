package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wendylw/mock-driven-testing-sub001/pkg/model"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func connected[T Simulator](t *testing.T, sim T) T {
	t.Helper()
	require.NoError(t, sim.Connect(context.Background()))
	return sim
}

func TestPrinterPrint(t *testing.T) {
	p := newTestPrinter(t)
	rec := record(p)
	require.NoError(t, p.Connect(context.Background()))

	res, err := p.Print(context.Background(), PrintJob{Text: "Total: 12.50"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Stale)
	assert.NotEmpty(t, res.PrintID)
	assert.Equal(t, PaperFull-1, p.PaperLevel())
	assert.Equal(t, []model.EventName{model.EventConnected, model.EventPrintStarted, model.EventPrintComplete}, rec.names())

	ev, _ := rec.last(model.EventPrintComplete)
	id, _ := ev.Value("printId")
	assert.Equal(t, res.PrintID, id)
}

func TestPrinterPaperLow(t *testing.T) {
	p := newTestPrinter(t)
	rec := record(p)
	require.NoError(t, p.Connect(context.Background()))
	require.NoError(t, p.TriggerExternalEvent("paperLow", map[string]any{"level": 12}))

	_, err := p.Print(context.Background(), PrintJob{Text: "x", Copies: 2})
	require.NoError(t, err)

	assert.Equal(t, 10, p.PaperLevel())
	assert.Equal(t, 2, rec.count(model.EventPaperLow))
}

func TestPrinterRefusals(t *testing.T) {
	tests := []struct {
		trigger string
		errType string
	}{
		{"paperOut", ErrTypePaperOut},
		{"coverOpen", ErrTypeCoverOpen},
		{"offline", ErrTypePrinterOffline},
	}
	for _, tt := range tests {
		t.Run(tt.trigger, func(t *testing.T) {
			p := newTestPrinter(t)
			rec := record(p)
			require.NoError(t, p.Connect(context.Background()))
			require.NoError(t, p.TriggerExternalEvent(tt.trigger, nil))

			_, err := p.Print(context.Background(), PrintJob{Text: "x"})
			var oerr *OperationError
			require.ErrorAs(t, err, &oerr)
			assert.Equal(t, tt.errType, oerr.ErrorType)
			assert.Equal(t, OpPrint, oerr.Operation)
			assert.Equal(t, 1, rec.count(model.EventPrintError))
			assert.Zero(t, rec.count(model.EventPrintStarted))
		})
	}
}

func TestPrinterInjectedFailure(t *testing.T) {
	cfg := quickConfig(model.Printer)
	cfg.ErrorRules = []ErrorRule{{Operation: OpPrint, ErrorType: ErrTypeCoverOpen, Rate: Rate(100)}}
	p := connected(t, must(NewPrinter("p", WithConfig(cfg))))
	rec := record(p)

	_, err := p.Print(context.Background(), PrintJob{Text: "x"})
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeCoverOpen, oerr.ErrorType)
	assert.Equal(t, PaperFull, p.PaperLevel())
	assert.False(t, p.State().CoverOpen, "injected failures do not change state")
	assert.Equal(t, []model.EventName{model.EventPrintStarted, model.EventPrintError}, rec.names())
}

func TestPrinterExternalEvents(t *testing.T) {
	p := newTestPrinter(t)
	rec := record(p)

	require.NoError(t, p.TriggerExternalEvent("paperOut", nil))
	require.NoError(t, p.TriggerExternalEvent("paperLoaded", nil))
	require.NoError(t, p.TriggerExternalEvent("coverOpen", nil))
	require.NoError(t, p.TriggerExternalEvent("coverClosed", nil))

	assert.Equal(t, PrinterState{PaperLevel: PaperFull, Online: true}, p.State())
	assert.Equal(t, []model.EventName{
		model.EventPaperOut, model.EventPaperLoaded, model.EventCoverOpened, model.EventCoverClosed,
	}, rec.names())
}

func TestScannerScan(t *testing.T) {
	s := connected(t, must(NewScanner("s", WithConfig(quickConfig(model.Scanner)))))
	rec := record(s)

	_, err := s.Scan(context.Background())
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeNotScanning, oerr.ErrorType)

	_, err = s.StartScanning(context.Background())
	require.NoError(t, err)
	res, err := s.Scan(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Barcode, 13)
	assert.Equal(t, BarcodeFormat, res.Format)
	assert.Equal(t, res.Barcode, s.State().LastBarcode)
	assert.Equal(t, 1, rec.count(model.EventBarcodeScanned))

	_, err = s.SetTorch(context.Background(), true)
	require.NoError(t, err)
	_, err = s.StopScanning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScannerState{TorchOn: true, LastBarcode: res.Barcode}, s.State())
}

func TestScannerExternalBarcode(t *testing.T) {
	s := connected(t, must(NewScanner("s", WithConfig(quickConfig(model.Scanner)))))
	rec := record(s)

	require.NoError(t, s.TriggerExternalEvent("barcodeScanned", map[string]any{"barcode": "4006381333931"}))

	ev, ok := rec.last(model.EventBarcodeScanned)
	require.True(t, ok)
	code, _ := ev.Value("barcode")
	assert.Equal(t, "4006381333931", code)
}

func TestNFCReadWrite(t *testing.T) {
	n := connected(t, must(NewNFCReader("nfc", WithConfig(quickConfig(model.NFCReader)))))
	rec := record(n)

	_, err := n.ReadTag(context.Background())
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeNoTag, oerr.ErrorType)

	require.NoError(t, n.TriggerExternalEvent("tagDetected", map[string]any{"uid": "04:A1:B2"}))
	res, err := n.ReadTag(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "04:A1:B2", res.Tag.UID)
	assert.Equal(t, DefaultTagType, res.Tag.Type)

	res, err = n.WriteTag(context.Background(), "loyalty:42")
	require.NoError(t, err)
	assert.Equal(t, "loyalty:42", res.Tag.Data)
	assert.Equal(t, "loyalty:42", n.State().CurrentTag.Data)

	require.NoError(t, n.TriggerExternalEvent("tagRemoved", nil))
	assert.False(t, n.State().TagPresent)
	assert.Equal(t, []model.EventName{
		model.EventNFCError, model.EventTagDetected, model.EventTagRead, model.EventTagWritten, model.EventTagRemoved,
	}, rec.names())
}

func TestNFCDisabled(t *testing.T) {
	n := connected(t, must(NewNFCReader("nfc", WithConfig(quickConfig(model.NFCReader)))))
	require.NoError(t, n.TriggerExternalEvent("tagDetected", nil))

	_, err := n.Disable(context.Background())
	require.NoError(t, err)
	assert.False(t, n.State().TagPresent)

	_, err = n.ReadTag(context.Background())
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeNFCDisabled, oerr.ErrorType)

	_, err = n.Enable(context.Background())
	require.NoError(t, err)
	assert.True(t, n.State().Enabled)
}

func TestNFCTagDetectedWhileDisabled(t *testing.T) {
	n := connected(t, must(NewNFCReader("nfc", WithConfig(quickConfig(model.NFCReader)))))
	_, err := n.Disable(context.Background())
	require.NoError(t, err)
	rec := record(n)

	require.NoError(t, n.TriggerExternalEvent("tagDetected", map[string]any{"uid": "04:C3"}))
	st := n.State()
	assert.True(t, st.TagPresent)
	require.NotNil(t, st.CurrentTag)
	assert.Equal(t, "04:C3", st.CurrentTag.UID)

	ev, ok := rec.last(model.EventTagDetected)
	require.True(t, ok)
	enabled, _ := ev.Value("enabled")
	assert.Equal(t, false, enabled)

	_, err = n.ReadTag(context.Background())
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeNFCDisabled, oerr.ErrorType)

	require.NoError(t, n.TriggerExternalEvent("tagRemoved", nil))
	require.NoError(t, n.TriggerExternalEvent("tagRemoved", nil))
	assert.False(t, n.State().TagPresent)
	assert.Equal(t, 2, rec.count(model.EventTagRemoved))
}

func TestCashDrawerLock(t *testing.T) {
	d := connected(t, must(NewCashDrawer("drawer", WithConfig(quickConfig(model.CashDrawer)))))
	rec := record(d)

	_, err := d.Lock(context.Background())
	require.NoError(t, err)

	_, err = d.Open(context.Background())
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeDrawerLocked, oerr.ErrorType)
	assert.False(t, d.State().Open)

	_, err = d.Unlock(context.Background())
	require.NoError(t, err)
	_, err = d.Open(context.Background())
	require.NoError(t, err)
	assert.True(t, d.State().Open)

	_, err = d.Lock(context.Background())
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeDrawerOpen, oerr.ErrorType)

	_, err = d.Close(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []model.EventName{
		model.EventDrawerLocked, model.EventDrawerUnlocked, model.EventDrawerOpened, model.EventDrawerClosed,
	}, rec.names())
}

func TestCashDrawerJammed(t *testing.T) {
	d := connected(t, must(NewCashDrawer("drawer", WithConfig(quickConfig(model.CashDrawer)))))
	rec := record(d)

	require.NoError(t, d.TriggerExternalEvent(ErrTypeDrawerJammed, nil))

	ev, ok := rec.last(model.EventError)
	require.True(t, ok)
	errType, _ := ev.Value("type")
	assert.Equal(t, ErrTypeDrawerJammed, errType)
	assert.True(t, d.IsConnected())
}

func TestCardReaderReadAndPay(t *testing.T) {
	c := connected(t, must(NewCardReader("card", WithConfig(quickConfig(model.CardReader)), WithSeed(3))))
	rec := record(c)

	_, err := c.ProcessPayment(context.Background(), 1250)
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeNoCard, oerr.ErrorType)

	card, err := c.ReadCard(context.Background())
	require.NoError(t, err)
	assert.Contains(t, card.Card.Number, "****")
	assert.True(t, c.State().CardPresent)

	_, err = c.ProcessPayment(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	pay, err := c.ProcessPayment(context.Background(), 1250)
	require.NoError(t, err)
	assert.True(t, pay.Approved)
	assert.Equal(t, int64(1250), pay.Amount)
	assert.Len(t, pay.Last4, 4)
	assert.NotEmpty(t, pay.TransactionID)

	_, err = c.EjectCard(context.Background())
	require.NoError(t, err)
	assert.False(t, c.State().CardPresent)

	assert.Equal(t, []model.EventName{
		model.EventCardError, model.EventCardInserted, model.EventCardRead, model.EventPaymentProcessed, model.EventCardRemoved,
	}, rec.names())
}

func TestCardReaderInsertedCard(t *testing.T) {
	c := connected(t, must(NewCardReader("card", WithConfig(quickConfig(model.CardReader)))))
	rec := record(c)

	require.NoError(t, c.TriggerExternalEvent("insertCard", map[string]any{"number": "4111111111111111", "brand": "visa"}))
	res, err := c.ReadCard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "**** **** **** 1111", res.Card.Number)
	assert.Equal(t, 1, rec.count(model.EventCardInserted))
	assert.Equal(t, 1, rec.count(model.EventCardRead))
}

func TestCardReaderReadiness(t *testing.T) {
	c := connected(t, must(NewCardReader("card", WithConfig(quickConfig(model.CardReader)))))
	rec := record(c)

	require.NoError(t, c.TriggerExternalEvent("notReady", nil))
	assert.False(t, c.State().Ready)
	_, err := c.ReadCard(context.Background())
	var oerr *OperationError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, ErrTypeReaderNotReady, oerr.ErrorType)

	require.NoError(t, c.TriggerExternalEvent("ready", nil))
	assert.True(t, c.State().Ready)
	_, err = c.ReadCard(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []model.EventName{
		model.EventReaderNotReady, model.EventCardError, model.EventReaderReady, model.EventCardInserted, model.EventCardRead,
	}, rec.names())
}

func TestScaleWeighing(t *testing.T) {
	s := connected(t, must(NewScale("scale", WithConfig(quickConfig(model.Scale)))))
	rec := record(s)

	require.NoError(t, s.TriggerExternalEvent("placeItem", map[string]any{"weight": 1.25}))
	res, err := s.GetWeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.25, res.Weight)
	assert.Equal(t, WeightUnit, res.Unit)
	assert.True(t, res.Stable)

	_, err = s.GetWeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rec.count(model.EventWeightReading))
	// One change from the item, one from the first differing reading.
	assert.Equal(t, 2, rec.count(model.EventWeightChanged))

	_, err = s.Tare(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScaleState{Weight: 0, Stable: true, Tared: true}, s.State())

	require.NoError(t, s.TriggerExternalEvent("placeItem", map[string]any{"weight": 2.0}))
	assert.Equal(t, 0.75, s.State().Weight)

	_, err = s.Zero(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ScaleState{Stable: true}, s.State())
}
