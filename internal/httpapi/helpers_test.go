package httpapi

import "encoding/base64"

func b64(raw []byte) string {
	return base64.StdEncoding.EncodeToString(raw)
}
