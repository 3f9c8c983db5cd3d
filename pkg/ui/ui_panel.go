// Package ui holds the small immediate-mode widgets of the flock viewer.
package ui

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

const (
	sectionHeight = 25.0
	titleHeight   = 30.0
)

// UIWidget is anything the panel can lay out.
type UIWidget interface {
	Update()
	Draw(screen *ebiten.Image)
	GetHeight() float64
	setY(y float64)
}

type SliderWrapper struct{ *Slider }

func (s *SliderWrapper) GetHeight() float64 { return s.H + 25 } // bar + label
func (s *SliderWrapper) setY(y float64)     { s.Y = y }

type CheckboxWrapper struct{ *Checkbox }

func (c *CheckboxWrapper) GetHeight() float64 { return c.Size + 5 }
func (c *CheckboxWrapper) setY(y float64)     { c.Y = y }

type ButtonWrapper struct{ *Button }

func (b *ButtonWrapper) GetHeight() float64 { return b.Height + 8 }
func (b *ButtonWrapper) setY(y float64)     { b.Y = y }

// UIPanel lays widgets out in titled sections and scrolls with the wheel.
type UIPanel struct {
	X, Y          float64
	Width, Height float64
	Title         string
	Widgets       []UIWidget
	Labels        []string
	ScrollOffset  float64
	Hidden        bool

	BGColor     color.RGBA
	BorderColor color.RGBA

	sections []PanelSection
}

// PanelSection groups the widgets in [StartIndex, EndIndex).
type PanelSection struct {
	Title      string
	StartIndex int
	EndIndex   int
}

func NewUIPanel(x, y, width, height float64) *UIPanel {
	return &UIPanel{
		X:           x,
		Y:           y,
		Width:       width,
		Height:      height,
		Title:       "Flock",
		BGColor:     color.RGBA{R: 40, G: 40, B: 45, A: 230},
		BorderColor: color.RGBA{R: 100, G: 100, B: 110, A: 255},
	}
}

func (p *UIPanel) AddSection(title string) {
	p.sections = append(p.sections, PanelSection{Title: title, StartIndex: len(p.Widgets)})
}

func (p *UIPanel) EndSection() {
	if len(p.sections) > 0 {
		p.sections[len(p.sections)-1].EndIndex = len(p.Widgets)
	}
}

func (p *UIPanel) AddSlider(label string, min, max, value float64) *Slider {
	s := NewSlider(p.X+10, p.nextY(), p.Width-20, label, min, max, value)
	p.add(&SliderWrapper{s}, label)
	return s
}

func (p *UIPanel) AddCheckbox(label string, value bool) *Checkbox {
	c := NewCheckbox(p.X+10, p.nextY(), label, value)
	p.add(&CheckboxWrapper{c}, label)
	return c
}

// AddButton adds a full-width button. Its label is drawn inside it.
func (p *UIPanel) AddButton(label string, onClick func()) *Button {
	b := NewButton(p.X+10, p.nextY(), p.Width-20, 18, label, onClick)
	p.add(&ButtonWrapper{b}, "")
	return b
}

func (p *UIPanel) add(w UIWidget, label string) {
	p.Widgets = append(p.Widgets, w)
	p.Labels = append(p.Labels, label)
}

// nextY is where the next widget starts before any scrolling.
func (p *UIPanel) nextY() float64 {
	y := p.Y + titleHeight + float64(len(p.sections))*sectionHeight
	for _, w := range p.Widgets {
		y += w.GetHeight()
	}
	return y + 15
}

// Changed reports whether any slider or checkbox moved since the last call.
func (p *UIPanel) Changed() bool {
	changed := false
	for _, w := range p.Widgets {
		switch w := w.(type) {
		case *SliderWrapper:
			changed = w.Changed() || changed
		case *CheckboxWrapper:
			changed = w.Changed() || changed
		}
	}
	return changed
}

func (p *UIPanel) Update() {
	if p.Hidden {
		return
	}
	if _, dy := ebiten.Wheel(); dy != 0 {
		maxScroll := max(p.contentHeight()-p.Height+40, 0)
		p.ScrollOffset = max(0, min(maxScroll, p.ScrollOffset-dy*20))
	}
	for _, w := range p.Widgets {
		w.Update()
	}
}

func (p *UIPanel) Draw(screen *ebiten.Image) {
	if p.Hidden {
		return
	}
	vector.FillRect(screen, float32(p.X), float32(p.Y), float32(p.Width), float32(p.Height), p.BGColor, true)
	vector.StrokeRect(screen, float32(p.X), float32(p.Y), float32(p.Width), float32(p.Height), 2, p.BorderColor, true)
	ebitenutil.DebugPrintAt(screen, p.Title, int(p.X+10), int(p.Y+5))

	y := p.Y + titleHeight - p.ScrollOffset
	for _, section := range p.sections {
		if p.visible(y, sectionHeight) {
			vector.FillRect(screen, float32(p.X+5), float32(y), float32(p.Width-10), 20,
				color.RGBA{R: 60, G: 60, B: 70, A: 255}, true)
			ebitenutil.DebugPrintAt(screen, section.Title, int(p.X+10), int(y+5))
		}
		y += sectionHeight

		for i := section.StartIndex; i < section.EndIndex && i < len(p.Widgets); i++ {
			w := p.Widgets[i]
			if p.visible(y, w.GetHeight()) {
				if p.Labels[i] != "" {
					ebitenutil.DebugPrintAt(screen, p.Labels[i], int(p.X+10), int(y))
				}
				w.setY(y + 15)
				w.Draw(screen)
			} else {
				// park it off screen so it does not catch clicks
				w.setY(-1000)
			}
			y += w.GetHeight()
		}
	}
}

func (p *UIPanel) visible(y, h float64) bool {
	return y >= p.Y-h && y <= p.Y+p.Height
}

func (p *UIPanel) contentHeight() float64 {
	h := titleHeight + float64(len(p.sections))*sectionHeight
	for _, w := range p.Widgets {
		h += w.GetHeight()
	}
	return h
}
