package telegram

import (
	"bytes"
	"fmt"
	"image/color"
	"time"

	"github.com/Freeeeeet/tutorlink/internal/model"
	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"
)

// Размеры изображения недели
const (
	imageWidth       = 1400
	imageHeight      = 900
	headerHeight     = 100
	leftLabelsWidth  = 80
	legendWidth      = 120
	dayPaddingX      = 8
	slotBorderRadius = 6.0
	shadowOffset     = 3.0
	totalDaysInWeek  = 7
	firstHour        = 7
	lastHour         = 21
)

var (
	bgColor          = color.RGBA{245, 246, 248, 255}
	textColor        = color.RGBA{80, 85, 90, 220}
	hourLabelColor   = color.RGBA{110, 115, 120, 200}
	hourLineColor    = color.NRGBA{150, 150, 150, 255}
	todayBgColor     = color.NRGBA{255, 99, 71, 125}
	evenDayColor     = color.NRGBA{240, 240, 240, 255}
	oddDayColor      = color.NRGBA{220, 220, 220, 255}
	currentTimeColor = color.NRGBA{255, 80, 80, 200}
	slotShadowColor  = color.RGBA{0, 0, 0, 20}
	slotTextColor    = color.RGBA{20, 24, 28, 230}

	statusColors = map[model.SessionStatus]color.RGBA{
		model.SessionStatusPending:  {255, 214, 102, 230},
		model.SessionStatusAccepted: {133, 193, 85, 220},
		model.SessionStatusPaid:     {120, 170, 230, 230},
	}
)

// WeekStart возвращает понедельник недели, в которую попадает t
func WeekStart(t time.Time) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := int(day.Weekday()) - 1
	if day.Weekday() == time.Sunday {
		offset = 6
	}
	return day.AddDate(0, 0, -offset)
}

// RenderWeek рисует календарь недели с сессиями и кодирует его в PNG.
// Сессии вне недели и с нераспознанным слотом пропускаются.
func RenderWeek(weekStart time.Time, sessions []*model.Session, now time.Time) ([]byte, error) {
	dc := gg.NewContext(imageWidth, imageHeight)
	dc.SetColor(bgColor)
	dc.Clear()
	dc.SetFontFace(basicfont.Face7x13)

	dayWidth := (imageWidth - leftLabelsWidth - legendWidth) / totalDaysInWeek
	dayHeight := imageHeight - headerHeight
	hours := lastHour - firstHour
	cellHeight := float64(dayHeight) / float64(hours)

	weekEnd := weekStart.AddDate(0, 0, totalDaysInWeek)
	title := fmt.Sprintf("%s - %s", weekStart.Format("02 Jan 2006"), weekEnd.AddDate(0, 0, -1).Format("02 Jan 2006"))
	dc.SetColor(textColor)
	dc.DrawStringAnchored(title, float64(imageWidth)/2, float64(headerHeight)/4, 0.5, 0.5)

	dc.SetColor(hourLabelColor)
	for h := 0; h <= hours; h++ {
		y := float64(headerHeight) + float64(h)*cellHeight
		dc.DrawStringAnchored(fmt.Sprintf("%02d:00", firstHour+h), float64(leftLabelsWidth)-10, y, 1, 0.5)
	}

	for i := 0; i < totalDaysInWeek; i++ {
		date := weekStart.AddDate(0, 0, i)
		x := float64(leftLabelsWidth + i*dayWidth)
		y := float64(headerHeight)

		switch {
		case sameDay(date, now):
			dc.SetColor(todayBgColor)
		case i%2 == 0:
			dc.SetColor(evenDayColor)
		default:
			dc.SetColor(oddDayColor)
		}
		dc.DrawRectangle(x, y, float64(dayWidth), float64(dayHeight))
		dc.Fill()

		dc.SetColor(textColor)
		dc.DrawStringAnchored(date.Format("Mon 02.01"), x+float64(dayWidth)/2, y-12, 0.5, 0)

		dc.SetLineWidth(0.3)
		dc.SetColor(hourLineColor)
		for h := 0; h <= hours; h++ {
			hy := y + float64(h)*cellHeight
			dc.DrawLine(x, hy, x+float64(dayWidth), hy)
			dc.Stroke()
		}
	}

	for _, s := range sessions {
		if s.SessionDate.Before(weekStart) || !s.SessionDate.Before(weekEnd) {
			continue
		}
		start, end, ok := model.SlotRange(s.TimeSlot)
		if !ok {
			continue
		}
		day := int(s.SessionDate.Sub(weekStart).Hours() / 24)
		drawSession(dc, s, day, start, end, dayWidth, cellHeight)
	}

	if now.After(weekStart) && now.Before(weekEnd) {
		current := float64(now.Hour()) + float64(now.Minute())/60
		if current >= firstHour && current <= lastHour {
			y := float64(headerHeight) + (current-firstHour)*cellHeight
			dc.SetColor(currentTimeColor)
			dc.SetLineWidth(2)
			dc.DrawLine(float64(leftLabelsWidth), y, float64(leftLabelsWidth+totalDaysInWeek*dayWidth), y)
			dc.Stroke()
		}
	}

	drawLegend(dc, dayWidth)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode week image: %w", err)
	}
	return buf.Bytes(), nil
}

func drawSession(dc *gg.Context, s *model.Session, day int, start, end time.Duration, dayWidth int, cellHeight float64) {
	x := float64(leftLabelsWidth+day*dayWidth) + dayPaddingX
	y := float64(headerHeight) + (start.Hours()-firstHour)*cellHeight
	w := float64(dayWidth) - dayPaddingX*2
	h := (end - start).Hours() * cellHeight

	dc.SetColor(slotShadowColor)
	dc.DrawRoundedRectangle(x+shadowOffset, y+2+shadowOffset, w, h-4, slotBorderRadius)
	dc.Fill()

	fill, ok := statusColors[s.Status]
	if !ok {
		fill = color.RGBA{220, 220, 220, 200}
	}
	dc.SetColor(fill)
	dc.DrawRoundedRectangle(x, y+2, w, h-4, slotBorderRadius)
	dc.Fill()

	dc.SetColor(darken(fill, 0.8))
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(x, y+2, w, h-4, slotBorderRadius)
	dc.Stroke()

	label := s.Module
	if len(label) > 20 {
		label = label[:17] + "..."
	}
	dc.SetColor(slotTextColor)
	dc.DrawString(label, x+8, y+18)
	dc.DrawString(string(s.Status), x+8, y+34)
}

func drawLegend(dc *gg.Context, dayWidth int) {
	x := float64(leftLabelsWidth+totalDaysInWeek*dayWidth) + 10
	y := float64(imageHeight) - 100

	for _, status := range []model.SessionStatus{model.SessionStatusPending, model.SessionStatusAccepted, model.SessionStatusPaid} {
		dc.SetColor(statusColors[status])
		dc.DrawRoundedRectangle(x, y, 20, 14, 3)
		dc.Fill()

		dc.SetColor(textColor)
		dc.DrawStringAnchored(string(status), x+28, y+8, 0, 0.2)
		y += 28
	}
}

func darken(c color.RGBA, factor float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(c.R) * factor),
		G: uint8(float64(c.G) * factor),
		B: uint8(float64(c.B) * factor),
		A: c.A,
	}
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
