package response

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/phambaophuc/background-remover/internal/apperror"
	"github.com/phambaophuc/background-remover/internal/config"
	"github.com/phambaophuc/background-remover/internal/models"
	"github.com/phambaophuc/background-remover/pkg/utils"
)

const (
	MsgPong    = "Pong!!"
	MsgRemoved = "Background removed successfully"
)

// Formatter renders the success bodies of one deployment. Exactly one shape
// is active per process; error bodies are always the JSON envelope.
type Formatter interface {
	Success(c *gin.Context, img *models.ProcessedImage)
	Pong(c *gin.Context)
	Format() string
}

func NewFormatter(format string) (Formatter, error) {
	switch format {
	case config.ResponseFormatJSON:
		return jsonFormatter{}, nil
	case config.ResponseFormatBinary:
		return binaryFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown response format %q", format)
	}
}

type jsonFormatter struct{}

func (jsonFormatter) Success(c *gin.Context, img *models.ProcessedImage) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: MsgRemoved,
		Data: models.RemovedBackground{
			Image: utils.EncodeDataURI(img.MimeType, img.Bytes),
		},
	})
}

func (jsonFormatter) Pong(c *gin.Context) {
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Message: MsgPong,
	})
}

func (jsonFormatter) Format() string { return config.ResponseFormatJSON }

type binaryFormatter struct{}

func (binaryFormatter) Success(c *gin.Context, img *models.ProcessedImage) {
	c.Header("Content-Length", strconv.Itoa(len(img.Bytes)))
	c.Data(http.StatusOK, img.MimeType, img.Bytes)
}

func (binaryFormatter) Pong(c *gin.Context) {
	c.String(http.StatusOK, MsgPong)
}

func (binaryFormatter) Format() string { return config.ResponseFormatBinary }

// Error writes err as a JSON envelope with the status of its kind.
func Error(c *gin.Context, err error) {
	c.JSON(apperror.StatusCode(err), models.APIResponse{
		Success: false,
		Message: apperror.PublicMessage(err),
	})
}

// Abort is Error for middleware: the rest of the chain is skipped.
func Abort(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperror.StatusCode(err), models.APIResponse{
		Success: false,
		Message: apperror.PublicMessage(err),
	})
}
