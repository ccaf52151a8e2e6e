package device

// Error types used by rules, faults and refused operations.
const (
	ErrTypePaperOut          = "paperOut"
	ErrTypeCoverOpen         = "coverOpen"
	ErrTypeConnectionLost    = "connectionLost"
	ErrTypeBarcodeUnreadable = "barcodeUnreadable"
	ErrTypeCameraError       = "cameraError"
	ErrTypeTagNotSupported   = "tagNotSupported"
	ErrTypeReadError         = "readError"
	ErrTypeDrawerJammed      = "drawerJammed"
	ErrTypeCardReadError     = "cardReadError"
	ErrTypeConnectionTimeout = "connectionTimeout"
	ErrTypeCalibrationError  = "calibrationError"
	ErrTypeWeightUnstable    = "weightUnstable"
	ErrTypeGeneric           = "genericError"

	ErrTypePrinterOffline = "printerOffline"
	ErrTypeNotScanning    = "notScanning"
	ErrTypeNFCDisabled    = "nfcDisabled"
	ErrTypeNoTag          = "noTag"
	ErrTypeDrawerLocked   = "drawerLocked"
	ErrTypeDrawerOpen     = "drawerOpen"
	ErrTypeReaderNotReady = "readerNotReady"
	ErrTypeNoCard         = "noCard"
)

var errorMessages = map[string]string{
	ErrTypePaperOut:          "Printer is out of paper",
	ErrTypeCoverOpen:         "Printer cover is open",
	ErrTypeConnectionLost:    "Connection to device lost",
	ErrTypeBarcodeUnreadable: "Barcode could not be read",
	ErrTypeCameraError:       "Scanner camera error",
	ErrTypeTagNotSupported:   "NFC tag type not supported",
	ErrTypeReadError:         "Failed to read NFC tag",
	ErrTypeDrawerJammed:      "Cash drawer is jammed",
	ErrTypeCardReadError:     "Failed to read card",
	ErrTypeConnectionTimeout: "Connection timed out",
	ErrTypeCalibrationError:  "Scale calibration error",
	ErrTypeWeightUnstable:    "Weight reading is unstable",
	ErrTypeGeneric:           "An unknown error occurred",

	ErrTypePrinterOffline: "Printer is offline",
	ErrTypeNotScanning:    "Scanner is not scanning",
	ErrTypeNFCDisabled:    "NFC reader is disabled",
	ErrTypeNoTag:          "No NFC tag present",
	ErrTypeDrawerLocked:   "Cash drawer is locked",
	ErrTypeDrawerOpen:     "Cash drawer is open",
	ErrTypeReaderNotReady: "Card reader is not ready",
	ErrTypeNoCard:         "No card present",
}

// ErrorMessage returns the human-readable message for an error type.
func ErrorMessage(errType string) string {
	if msg, ok := errorMessages[errType]; ok {
		return msg
	}
	return errorMessages[ErrTypeGeneric]
}
