package wire

import (
	"encoding/json"
	"fmt"
)

// ContentType discriminates the Content union carried inside tool and prompt
// results (spec.md §4.2).
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentResource ContentType = "resource"
)

// Content is a tagged union: Text{text}, Image{data base64,mime},
// Resource{uri,text?,mime?}. Unknown variants decode as Opaque so that a
// message containing a content kind this version of the core does not know
// about still round-trips instead of failing to parse (§4.2).
type Content struct {
	Type ContentType

	Text string // ContentText

	ImageData string // ContentImage, base64
	MimeType  string // ContentImage, ContentResource

	ResourceURI  string // ContentResource
	ResourceText string // ContentResource, optional

	Opaque json.RawMessage // set when Type is not one of the known values
}

func NewTextContent(text string) Content {
	return Content{Type: ContentText, Text: text}
}

func NewImageContent(base64Data, mimeType string) Content {
	return Content{Type: ContentImage, ImageData: base64Data, MimeType: mimeType}
}

func NewResourceContent(uri, text, mimeType string) Content {
	return Content{Type: ContentResource, ResourceURI: uri, ResourceText: text, MimeType: mimeType}
}

func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Type {
	case ContentText:
		return json.Marshal(struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{string(ContentText), c.Text})
	case ContentImage:
		return json.Marshal(struct {
			Type     string `json:"type"`
			Data     string `json:"data"`
			MimeType string `json:"mimeType"`
		}{string(ContentImage), c.ImageData, c.MimeType})
	case ContentResource:
		return json.Marshal(struct {
			Type string `json:"type"`
			URI  string `json:"uri"`
			Text string `json:"text,omitempty"`
			Mime string `json:"mimeType,omitempty"`
		}{string(ContentResource), c.ResourceURI, c.ResourceText, c.MimeType})
	default:
		if c.Opaque != nil {
			return c.Opaque, nil
		}
		return nil, fmt.Errorf("wire: content has neither a known type nor opaque payload")
	}
}

func (c *Content) UnmarshalJSON(b []byte) error {
	var tag struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &tag); err != nil {
		return err
	}
	switch ContentType(tag.Type) {
	case ContentText:
		var v struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*c = Content{Type: ContentText, Text: v.Text}
	case ContentImage:
		var v struct {
			Data     string `json:"data"`
			MimeType string `json:"mimeType"`
		}
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*c = Content{Type: ContentImage, ImageData: v.Data, MimeType: v.MimeType}
	case ContentResource:
		var v struct {
			URI  string `json:"uri"`
			Text string `json:"text"`
			Mime string `json:"mimeType"`
		}
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*c = Content{Type: ContentResource, ResourceURI: v.URI, ResourceText: v.Text, MimeType: v.Mime}
	default:
		*c = Content{Type: ContentType(tag.Type), Opaque: append(json.RawMessage{}, b...)}
	}
	return nil
}
