// Package api provides the client for the ERCOT public reports API.
//
// Endpoints:
//   - Reports: https://api.ercot.com/api/public-reports/{product}/{report}
//   - Archive listing: GET {base}/archive/{product}
//   - Archive bundle: POST {base}/archive/{product}/download
//
// Every call goes through Client.Send, which waits on a shared Limiter and
// runs one request through the states idle, sending, awaiting_retry,
// refreshing_auth, then failed or succeeded. Requests carry a bearer token
// from an AuthProvider and the Ocp-Apim-Subscription-Key header.
package api
