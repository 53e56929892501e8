package app

import (
	"fmt"
	"os"

	"github.com/lyra-voice/lyra/internal/msglog"
)

// printMessage is the console UI collaborator: every finalized message
// is echoed to stdout as it lands in the log.
func printMessage(m msglog.Message) {
	fmt.Fprintf(os.Stdout, "[%s] %s: %s\n", m.Time.Format("15:04:05"), m.Role, m.Text)
}
