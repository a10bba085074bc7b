package annotate

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/san-kum/helmet-cv/server/models"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	referenceWidth = 640.0
	baseFontSize   = 15.0
	panelFontSize  = 16.0
	panelWidth     = 180
	panelHeight    = 90
	panelAlpha     = 0.7
)

var (
	ColorHelmet   = color.RGBA{0, 200, 0, 255}
	ColorNoHelmet = color.RGBA{220, 0, 0, 255}
	ColorUnknown  = color.RGBA{0, 200, 200, 255}
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Overlay asks Annotate to draw the statistics panel. FPS is the processing
// rate of the frame being drawn.
type Overlay struct {
	FPS float64
}

func LabelColor(label models.Label) color.RGBA {
	switch label {
	case models.LabelHelmet:
		return ColorHelmet
	case models.LabelNoHelmet:
		return ColorNoHelmet
	default:
		return ColorUnknown
	}
}

// Thickness is the box stroke width for an image of the given width.
func Thickness(width int) int {
	return max(1, int(float64(width)/referenceWidth*2.5))
}

// Annotate draws the detections onto a copy of img and returns it along with
// the frame statistics. img itself is left untouched.
func Annotate(img image.Image, detections []models.Detection, overlay *Overlay) (*image.RGBA, models.FrameStatistics) {
	bounds := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	stats := models.NewFrameStatistics(detections)

	dc := gg.NewContextForRGBA(dst)
	scale := float64(bounds.Dx()) / referenceWidth
	thickness := float64(Thickness(bounds.Dx()))
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: baseFontSize * math.Max(scale, 0.5)}))

	for _, d := range detections {
		box := d.Box.Sub(bounds.Min)
		drawDetection(dc, box, d, thickness)
	}

	if overlay != nil {
		drawPanel(dc, stats, overlay.FPS)
	}

	return dst, stats
}

func drawDetection(dc *gg.Context, box image.Rectangle, d models.Detection, thickness float64) {
	c := LabelColor(d.Label)

	dc.SetColor(c)
	dc.SetLineWidth(thickness)
	dc.DrawRectangle(float64(box.Min.X), float64(box.Min.Y), float64(box.Dx()), float64(box.Dy()))
	dc.Stroke()

	text := d.Text()
	tw, th := dc.MeasureString(text)
	x := float64(box.Min.X)
	top := float64(box.Min.Y) - th - 10
	baseline := float64(box.Min.Y) - 5
	// no room above the box: put the label just inside it
	if top < 0 {
		top = float64(box.Min.Y)
		baseline = top + th + 5
	}

	dc.SetColor(c)
	dc.DrawRectangle(x, top, tw, th+10)
	dc.Fill()

	dc.SetColor(color.White)
	dc.DrawString(text, x, baseline)
}

func drawPanel(dc *gg.Context, stats models.FrameStatistics, fps float64) {
	dc.SetRGBA(0, 0, 0, panelAlpha)
	dc.DrawRectangle(10, 10, panelWidth, panelHeight)
	dc.Fill()

	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: panelFontSize}))
	lines := []struct {
		text  string
		color color.Color
	}{
		{text: "Helmet: " + itoa(stats.Helmet), color: ColorHelmet},
		{text: "No Helmet: " + itoa(stats.NoHelmet), color: ColorNoHelmet},
		{text: "Proc FPS: " + ftoa(fps), color: color.White},
	}
	for i, line := range lines {
		dc.SetColor(line.color)
		dc.DrawString(line.text, 20, float64(35+i*25))
	}
}
