package preview

const (
	// DefaultMaxDim matches the 300px box the analysis page reserves for the upload.
	DefaultMaxDim = 300
	MinMaxDim     = 16

	// MaxPixels caps the decoded size; larger images are embedded without a thumbnail.
	MaxPixels = 40_000_000
)
