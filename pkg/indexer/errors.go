package indexer

import "errors"

var (
	// ErrStatusRecovery means the watermark could not be recovered from the
	// index. The run is aborted before the source is read.
	ErrStatusRecovery = errors.New("failed to load index update status")

	// ErrSourceRead means a page could not be read from the source store.
	ErrSourceRead = errors.New("failed to read source data page")

	// ErrIndexWrite means a bulk apply failed, wholly or for some actions.
	// The watermark is not advanced past the failed page.
	ErrIndexWrite = errors.New("failed to apply index actions")

	// ErrWatermarkRegression means the source returned a page that does not
	// end after the watermark, usually because the store orders title
	// numbers differently from byte order. The page is not applied.
	ErrWatermarkRegression = errors.New("source page does not advance the watermark")
)
