package pagekit

import (
	"encoding/json"
	"time"
)

// PageData is the singleton document holding all editable site content
// and theme settings.
type PageData struct {
	Hero           Hero              `json:"hero" bson:"hero"`
	About          About             `json:"about" bson:"about"`
	PortfolioPage  PortfolioPage     `json:"portfolioPage" bson:"portfolioPage"`
	PortfolioIntro string            `json:"portfolioIntro" bson:"portfolioIntro"`
	Services       []Service         `json:"services" bson:"services"`
	Portfolio      []PortfolioItem   `json:"portfolio" bson:"portfolio"`
	Testimonials   []Testimonial     `json:"testimonials" bson:"testimonials"`
	Contact        Contact           `json:"contact" bson:"contact"`
	Colors         map[string]string `json:"colors" bson:"colors"`
	Typography     map[string]string `json:"typography" bson:"typography"`

	SchemaVersion int       `json:"schemaVersion" bson:"schemaVersion"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" bson:"updatedAt"`
}

type Hero struct {
	Title       string `json:"title" bson:"title"`
	Subtitle    string `json:"subtitle" bson:"subtitle"`
	Description string `json:"description" bson:"description"`
}

type About struct {
	Text1    string   `json:"text1" bson:"text1"`
	Text2    string   `json:"text2" bson:"text2"`
	Features []string `json:"features" bson:"features"`
}

type PortfolioPage struct {
	Eyebrow      string `json:"eyebrow" bson:"eyebrow"`
	HeroTitle    string `json:"heroTitle" bson:"heroTitle"`
	SectionTitle string `json:"sectionTitle" bson:"sectionTitle"`
}

type Contact struct {
	WhatsApp  string `json:"whatsapp" bson:"whatsapp"`
	Email     string `json:"email" bson:"email"`
	Instagram string `json:"instagram" bson:"instagram"`
	TikTok    string `json:"tiktok" bson:"tiktok"`
	LinkedIn  string `json:"linkedin" bson:"linkedin"`
}

// Service is one entry of the site's services list. It has no identity
// beyond its position in PageData.Services.
type Service struct {
	Title         string `json:"title" bson:"title"`
	Description   string `json:"description" bson:"description"`
	Image         string `json:"image" bson:"image"`
	ImageFilename string `json:"imageFilename" bson:"imageFilename"`
	ImageSize     string `json:"imageSize" bson:"imageSize"` // CSS length
	Active        bool   `json:"active" bson:"active"`
}

// UnmarshalJSON applies the per-entry defaults before decoding. On a type
// mismatch the fields that did decode are still kept.
func (s *Service) UnmarshalJSON(b []byte) error {
	type plain Service
	v := plain{ImageSize: defaultImageSize, Active: true}
	err := json.Unmarshal(b, &v)
	*s = Service(v)
	return err
}

type PortfolioItem struct {
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
	VideoURL    string `json:"videoUrl" bson:"videoUrl"`
	Poster      string `json:"poster" bson:"poster"`
	Active      bool   `json:"active" bson:"active"`
}

func (p *PortfolioItem) UnmarshalJSON(b []byte) error {
	type plain PortfolioItem
	v := plain{Active: true}
	err := json.Unmarshal(b, &v)
	*p = PortfolioItem(v)
	return err
}

type Testimonial struct {
	Name     string `json:"name" bson:"name"`
	Position string `json:"position" bson:"position"`
	Text     string `json:"text" bson:"text"`
	Active   bool   `json:"active" bson:"active"`
}

func (t *Testimonial) UnmarshalJSON(b []byte) error {
	type plain Testimonial
	v := plain{Active: true}
	err := json.Unmarshal(b, &v)
	*t = Testimonial(v)
	return err
}

// Image describes a compressed upload in the upload directory.
type Image struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// ImageFile is one entry of an upload directory listing.
type ImageFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}
