package console

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mklimuk/arinc429"
)

const PictoPlug = "🔌"
const PictoAntenna = "📡"
const PictoFinish = "🏁"
const PictoStop = "🚫"
const PictoClock = "⏱"
const PictoNotebook = "📒"
const PictoPin = "📌"
const PictoGhost = "👻"

var writer io.Writer
var errWriter io.Writer

func init() {
	writer = os.Stdout
	errWriter = os.Stderr
}

func SetOutput(w, errw io.Writer) {
	writer = w
	errWriter = errw
}

func Error(msg string) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Red("ERROR"), msg)
}

func Errorf(msg string, args ...any) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Red("ERROR"), fmt.Sprintf(msg, args...))
}

func Warnf(msg string, args ...any) {
	_, _ = fmt.Fprintf(errWriter, "%s: %s\n", Yellow("WARN"), fmt.Sprintf(msg, args...))
}

func Infof(msg string, args ...any) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", White("..."), fmt.Sprintf(msg, args...))
}

func PInfof(picto, msg string, args ...any) {
	_, _ = fmt.Fprintf(writer, "%s %s\n", picto, fmt.Sprintf(msg, args...))
}

func Printf(msg string, args ...any) {
	_, _ = fmt.Fprintf(writer, msg, args...)
}

// Word prints one received word with its decoded fields.
func Word(channel int, w arinc429.Word, ts int64) {
	_, _ = fmt.Fprintf(writer, "%s ch%s label %s sdi %d ssm %d data %#05x %s\n",
		time.UnixMilli(ts).Format("15:04:05.000"),
		Cyan(channel), Bold(w.LabelOctal()), w.SDI(), w.SSM(), w.Data(), White(w.String()))
}
