package model

// EventName identifies what happened.
type EventName string

// String returns the event name.
func (n EventName) String() string {
	return string(n)
}

// Lifecycle events, emitted by every simulator.
const (
	EventConnected       EventName = "connected"
	EventDisconnected    EventName = "disconnected"
	EventConnectionError EventName = "connectionError"
	EventError           EventName = "error"
	EventReset           EventName = "reset"
)

// Printer events.
const (
	EventPrintStarted   EventName = "printStarted"
	EventPrintComplete  EventName = "printComplete"
	EventPrintError     EventName = "printError"
	EventPaperOut       EventName = "paperOut"
	EventPaperLow       EventName = "paperLow"
	EventPaperLoaded    EventName = "paperLoaded"
	EventCoverOpened    EventName = "coverOpened"
	EventCoverClosed    EventName = "coverClosed"
	EventPrinterOnline  EventName = "printerOnline"
	EventPrinterOffline EventName = "printerOffline"
)

// Scanner events.
const (
	EventScanStarted    EventName = "scanStarted"
	EventScanStopped    EventName = "scanStopped"
	EventBarcodeScanned EventName = "barcodeScanned"
	EventScanError      EventName = "scanError"
	EventTorchChanged   EventName = "torchChanged"
)

// NFC reader events.
const (
	EventNFCEnabled  EventName = "nfcEnabled"
	EventNFCDisabled EventName = "nfcDisabled"
	EventTagDetected EventName = "tagDetected"
	EventTagRead     EventName = "tagRead"
	EventTagWritten  EventName = "tagWritten"
	EventTagRemoved  EventName = "tagRemoved"
	EventNFCError    EventName = "nfcError"
)

// Cash drawer events.
const (
	EventDrawerOpened   EventName = "drawerOpened"
	EventDrawerClosed   EventName = "drawerClosed"
	EventDrawerLocked   EventName = "drawerLocked"
	EventDrawerUnlocked EventName = "drawerUnlocked"
)

// Card reader events.
const (
	EventCardInserted     EventName = "cardInserted"
	EventCardRead         EventName = "cardRead"
	EventCardRemoved      EventName = "cardRemoved"
	EventCardError        EventName = "cardError"
	EventPaymentProcessed EventName = "paymentProcessed"
	EventReaderReady      EventName = "readerReady"
	EventReaderNotReady   EventName = "readerNotReady"
)

// Scale events.
const (
	EventWeightChanged EventName = "weightChanged"
	EventWeightReading EventName = "weightReading"
	EventTared         EventName = "tared"
	EventZeroed        EventName = "zeroed"
)

// Orchestrator events.
const (
	EventPatternMatched  EventName = "patternMatched"
	EventReconnecting    EventName = "reconnecting"
	EventReconnected     EventName = "reconnected"
	EventReconnectFailed EventName = "reconnectFailed"
)

// Flow events.
const (
	EventFlowStarted   EventName = "flowStarted"
	EventFlowStep      EventName = "flowStep"
	EventFlowCompleted EventName = "flowCompleted"
)
