package deliver

import (
	"net/http"
	"time"

	"github.com/scan2target/scan2target/internal/domain"
)

// DefaultHandlers builds the full protocol handler set. probeTimeout bounds
// connection establishment for the socket-level protocols; HTTP uploads get
// a generous overall client timeout since artifact size varies.
func DefaultHandlers(probeTimeout time.Duration) map[domain.TargetType]Handler {
	httpClient := &http.Client{Timeout: 60 * time.Second}
	return map[domain.TargetType]Handler{
		domain.TargetSMB:       NewSMBHandler(probeTimeout),
		domain.TargetSFTP:      NewSFTPHandler(probeTimeout),
		domain.TargetEmail:     NewEmailHandler(probeTimeout),
		domain.TargetPaperless: NewPaperlessHandler(httpClient),
		domain.TargetWebhook:   NewWebhookHandler(httpClient),
		domain.TargetGDrive:    NewGoogleDriveHandler(httpClient),
		domain.TargetDropbox:   NewDropboxHandler(httpClient),
		domain.TargetOneDrive:  NewOneDriveHandler(httpClient),
		domain.TargetNextcloud: NewNextcloudHandler(httpClient),
	}
}
