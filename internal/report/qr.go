package report

import (
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// DownloadLinkQR creates a QR code PNG encoding the log's download URL.
func DownloadLinkQR(url string, size int) ([]byte, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("download url is empty")
	}
	if size <= 0 {
		size = 128
	}
	return qrcode.Encode(url, qrcode.Medium, size)
}
