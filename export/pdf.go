package export

import (
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"
	"golang.org/x/exp/slices"

	"github.com/framepad/framepad/annotate"
)

const (
	pdfPageWidth  = 297.0
	pdfPageHeight = 210.0
	pdfMargin     = 10.0
)

// WritePDF renders each frame that has visible annotations onto its own
// landscape A4 page. Annotation coordinates are unit-square and scale to
// the drawable page area.
func WritePDF(path string, annotations map[string]*annotate.Annotation, holdDuration int) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 10)

	drawWidth := pdfPageWidth - 2*pdfMargin
	drawHeight := pdfPageHeight - 2*pdfMargin

	for _, frame := range annotatedFrames(annotations, holdDuration) {
		pdf.AddPage()
		pdf.SetTextColor(0, 0, 0)
		pdf.Text(pdfMargin, pdfMargin-2, fmt.Sprintf("frame %d", frame))

		for _, annotation := range visibleOnFrame(annotations, frame, holdDuration) {
			r, g, b := parseHexColor(annotation.Style.Color)
			pdf.SetDrawColor(r, g, b)
			lineWidth := annotation.Style.StrokeWidth * drawWidth
			if lineWidth <= 0 {
				lineWidth = 0.5
			}
			pdf.SetLineWidth(lineWidth)

			toPage := func(p annotate.Point) (float64, float64) {
				return pdfMargin + p.X*drawWidth, pdfMargin + p.Y*drawHeight
			}

			switch annotation.Shape {
			case annotate.ShapeCircle:
				if len(annotation.Points) < 2 {
					continue
				}
				x0, y0 := toPage(annotation.Points[0])
				x1, y1 := toPage(annotation.Points[1])
				pdf.Ellipse((x0+x1)/2, (y0+y1)/2, abs(x1-x0)/2, abs(y1-y0)/2, 0, "D")
			case annotate.ShapeSquare:
				if len(annotation.Points) < 2 {
					continue
				}
				x0, y0 := toPage(annotation.Points[0])
				x1, y1 := toPage(annotation.Points[1])
				pdf.Rect(min(x0, x1), min(y0, y1), abs(x1-x0), abs(y1-y0), "D")
			case annotate.ShapeText:
				if len(annotation.Points) < 1 {
					continue
				}
				x, y := toPage(annotation.Points[0])
				pdf.SetTextColor(r, g, b)
				pdf.Text(x, y, annotation.Text)
			default:
				// freehand, arrow, line, polyline: line segments
				for i := 1; i < len(annotation.Points); i += 1 {
					x0, y0 := toPage(annotation.Points[i-1])
					x1, y1 := toPage(annotation.Points[i])
					pdf.Line(x0, y0, x1, y1)
				}
			}
		}
	}

	return pdf.OutputFileAndClose(path)
}

func annotatedFrames(annotations map[string]*annotate.Annotation, holdDuration int) []int {
	frameSet := map[int]bool{}
	for _, annotation := range annotations {
		end := annotation.Frame + annotation.EffectiveDuration(holdDuration)
		for frame := annotation.Frame; frame < end; frame += 1 {
			frameSet[frame] = true
		}
	}
	frames := make([]int, 0, len(frameSet))
	for frame := range frameSet {
		frames = append(frames, frame)
	}
	slices.Sort(frames)
	return frames
}

func visibleOnFrame(annotations map[string]*annotate.Annotation, frame int, holdDuration int) []*annotate.Annotation {
	visible := []*annotate.Annotation{}
	for _, annotation := range annotations {
		if annotation.VisibleAt(frame, holdDuration) {
			visible = append(visible, annotation)
		}
	}
	sortForExport(visible)
	return visible
}

func parseHexColor(color string) (int, int, int) {
	if len(color) != 7 || color[0] != '#' {
		return 0, 0, 0
	}
	r, err1 := strconv.ParseInt(color[1:3], 16, 0)
	g, err2 := strconv.ParseInt(color[3:5], 16, 0)
	b, err3 := strconv.ParseInt(color[5:7], 16, 0)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, 0, 0
	}
	return int(r), int(g), int(b)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
