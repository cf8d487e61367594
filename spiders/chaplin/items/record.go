package items

// Record is one film scraped from an archive.org detail page.
type Record struct {
	Thumbnail   string `json:"thumbnail"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	VideoURL    string `json:"video_url"`
}

// Valid reports whether the record carries the fields every exported
// record must have.
func (r *Record) Valid() bool {
	return r.Title != "" && r.VideoURL != ""
}

// Fields lists the serialized column names in export order.
var Fields = []string{"thumbnail", "title", "description", "date", "video_url"}

// Values returns the record's values in Fields order.
func (r *Record) Values() []string {
	return []string{r.Thumbnail, r.Title, r.Description, r.Date, r.VideoURL}
}
