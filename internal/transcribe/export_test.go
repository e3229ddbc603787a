package transcribe

// Exports for black-box testing.
var (
	ClassifyStatus    = classifyStatus
	IsRetryableError  = isRetryableError
	ParseResponseFunc = parseResponse
)
