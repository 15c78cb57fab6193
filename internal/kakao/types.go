package kakao

// Meta is the paging block of every search response.
type Meta struct {
	IsEnd         bool `json:"is_end"`
	PageableCount int  `json:"pageable_count"`
	TotalCount    int  `json:"total_count"`
}

// ImageDocument is one hit of the image search endpoint.
type ImageDocument struct {
	Collection      string `json:"collection"`
	Datetime        string `json:"datetime"`
	DisplaySitename string `json:"display_sitename"`
	DocURL          string `json:"doc_url"`
	Height          int    `json:"height"`
	ImageURL        string `json:"image_url"`
	ThumbnailURL    string `json:"thumbnail_url"`
	Width           int    `json:"width"`
}

// VideoDocument is one hit of the video clip search endpoint.
type VideoDocument struct {
	Author    string `json:"author"`
	Datetime  string `json:"datetime"`
	PlayTime  int    `json:"play_time"`
	Thumbnail string `json:"thumbnail"`
	Title     string `json:"title"`
	URL       string `json:"url"`
}

// ImageResponse is the body of /v2/search/image.
type ImageResponse struct {
	Meta      Meta            `json:"meta"`
	Documents []ImageDocument `json:"documents"`
}

// VideoResponse is the body of /v2/search/vclip.
type VideoResponse struct {
	Meta      Meta            `json:"meta"`
	Documents []VideoDocument `json:"documents"`
}
