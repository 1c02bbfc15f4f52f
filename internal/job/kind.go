package job

import "github.com/maauso/clearmedia-api/internal/billing"

// Kind is the type of conversion a job performs.
type Kind string

const (
	KindWatermarkLogoRemoval  Kind = "watermark_logo_removal"
	KindSubtitleRemoval       Kind = "subtitle_removal"
	KindImageWatermarkRemoval Kind = "image_watermark_removal"
	KindImageRestoration      Kind = "image_restoration"
	KindImageCutout           Kind = "image_cutout"
	KindImageColorization     Kind = "image_colorization"
	KindPDFWatermarkRemoval   Kind = "pdf_watermark_removal"
	KindAudioWatermarkRemoval Kind = "audio_watermark_removal"
	KindEbookWatermarkRemoval Kind = "ebook_watermark_removal"
)

// VideoKinds are the duration-billed kinds run by the media-processing service.
var VideoKinds = []Kind{KindWatermarkLogoRemoval, KindSubtitleRemoval}

// FileKinds are the flat-priced kinds run by the task queue.
var FileKinds = []Kind{
	KindImageWatermarkRemoval,
	KindImageRestoration,
	KindImageCutout,
	KindImageColorization,
	KindPDFWatermarkRemoval,
	KindAudioWatermarkRemoval,
	KindEbookWatermarkRemoval,
}

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	for _, v := range VideoKinds {
		if k == v {
			return true
		}
	}
	for _, v := range FileKinds {
		if k == v {
			return true
		}
	}
	return false
}

const mib = 1 << 20

// DefaultPolicies returns the billing policy of every kind.
func DefaultPolicies() map[Kind]billing.Policy {
	return map[Kind]billing.Policy{
		KindWatermarkLogoRemoval:  billing.VideoPolicy(),
		KindSubtitleRemoval:       billing.VideoPolicy(),
		KindImageWatermarkRemoval: billing.FlatPolicy(1, 20*mib),
		KindImageRestoration:      billing.FlatPolicy(1, 20*mib),
		KindImageCutout:           billing.FlatPolicy(1, 20*mib),
		KindImageColorization:     billing.FlatPolicy(1, 20*mib),
		KindPDFWatermarkRemoval:   billing.FlatPolicy(1, 50*mib),
		KindAudioWatermarkRemoval: billing.FlatPolicy(1, 100*mib),
		KindEbookWatermarkRemoval: billing.FlatPolicy(1, 50*mib),
	}
}
