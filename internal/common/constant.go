package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// DownloadKeyParam is the query parameter carrying the download key.
const DownloadKeyParam = "key"

// DefaultContentType is used when an upload does not declare a MIME type.
const DefaultContentType = "application/octet-stream"
