package permissions

// Permission represents an atomic named capability. SystemName is the
// stable key every authorization check uses; the numeric id is surrogate.
type Permission struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	SystemName  string `json:"system_name"`
	IsActive    bool   `json:"is_active"`
}
