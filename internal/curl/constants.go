package curl

const (
	cmdCurl    = "curl"
	cmdSudo    = "sudo"
	cmdEnv     = "env"
	cmdCommand = "command"
	cmdTime    = "time"
	cmdNoGlob  = "noglob"
)

var promptPrefixes = []string{"$", "%", ">", "!"}

const (
	headerContentType    = "Content-Type"
	headerAccept         = "Accept"
	headerAcceptEncoding = "Accept-Encoding"
	headerAuthorization  = "Authorization"
	headerUserAgent      = "User-Agent"
	headerReferer        = "Referer"
	headerCookie         = "Cookie"
)

const (
	mimeJSON              = "application/json"
	mimeFormURLEncoded    = "application/x-www-form-urlencoded"
	mimeMultipartForm     = "multipart/form-data"
	mimeOctetStream       = "application/octet-stream"
	acceptEncodingDefault = "gzip, deflate, br"
)

const (
	multipartBoundaryDefault = "courier-boundary"
	multipartBoundaryPrefix  = "courier-"
	boundaryHashLength       = 12 // bytes of SHA-256 used for multipart boundary
	urlQuoteChars            = "\"'"
	authBasicPrefix          = "Basic "
	authBearerPrefix         = "Bearer "
	defaultAPIKeyHeader      = "X-API-Key"
	defaultAPIKeyParam       = "api_key"
)
