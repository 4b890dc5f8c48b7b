package profile

// AssetIndex maps logical asset paths to their objects.
type AssetIndex struct {
	Objects        map[string]Object `json:"objects"`
	Virtual        bool              `json:"virtual,omitempty"`
	MapToResources bool              `json:"map_to_resources,omitempty"`
}

// Object is one asset, addressed by its SHA-1.
type Object struct {
	Hash string `json:"hash"`
	Size int64  `json:"size"`
}

// RelativePath is the object's path below the objects directory and below
// the asset host: the first two hex digits, a slash, then the whole hash.
func (o Object) RelativePath() string {
	if len(o.Hash) < 2 {
		return o.Hash
	}
	return o.Hash[:2] + "/" + o.Hash
}
