package domain

// TorrentRecord represents one transfer known to the system, whether active or paused.
type TorrentRecord struct {
	InfoHash        string
	Name            string
	MagnetURI       string
	Announce        []string
	Path            string
	Paused          bool
	Private         bool
	Length          int64
	PieceLength     int64
	LastPieceLength int64
	CreatedBy       string
	TorrentFile     []byte
}

// Clone returns a deep copy so registry callers never share slices with the registry.
func (r TorrentRecord) Clone() TorrentRecord {
	out := r
	if r.Announce != nil {
		out.Announce = append([]string(nil), r.Announce...)
	}
	if r.TorrentFile != nil {
		out.TorrentFile = append([]byte(nil), r.TorrentFile...)
	}
	return out
}

// Stored returns the durable subset of the record.
func (r TorrentRecord) Stored() StoredRecord {
	announce := r.Announce
	if announce == nil {
		announce = []string{}
	}
	return StoredRecord{
		Name:      r.Name,
		InfoHash:  r.InfoHash,
		MagnetURI: r.MagnetURI,
		Announce:  append([]string(nil), announce...),
		Length:    r.Length,
		Path:      r.Path,
		Paused:    r.Paused,
	}
}

// ApplyMetadata copies engine-resolved metadata onto the record.
func (r *TorrentRecord) ApplyMetadata(md Metadata) {
	if md.Name != "" {
		r.Name = md.Name
	}
	if md.Length > 0 {
		r.Length = md.Length
	}
	if md.PieceLength > 0 {
		r.PieceLength = md.PieceLength
		r.LastPieceLength = md.LastPieceLength
	}
	r.Private = r.Private || md.Private
	if len(md.TorrentFile) > 0 {
		r.TorrentFile = append([]byte(nil), md.TorrentFile...)
	}
	if md.CreatedBy != "" && r.CreatedBy == "" {
		r.CreatedBy = md.CreatedBy
	}
}

// StoredRecord is the persisted shape of a record in the torrents document.
type StoredRecord struct {
	Name      string   `json:"name"`
	InfoHash  string   `json:"infoHash"`
	MagnetURI string   `json:"magnetURI"`
	Announce  []string `json:"announce"`
	Length    int64    `json:"length"`
	Path      string   `json:"path"`
	Paused    bool     `json:"paused"`
}

// Record converts a stored entry back into an in-memory record.
func (s StoredRecord) Record() TorrentRecord {
	return TorrentRecord{
		InfoHash:  s.InfoHash,
		Name:      s.Name,
		MagnetURI: s.MagnetURI,
		Announce:  append([]string(nil), s.Announce...),
		Path:      s.Path,
		Paused:    s.Paused,
		Length:    s.Length,
	}
}

// Metadata is what the engine learns once a transfer's info dictionary is known.
type Metadata struct {
	Name            string
	Length          int64
	PieceLength     int64
	LastPieceLength int64
	Private         bool
	CreatedBy       string
	TorrentFile     []byte
}

// Stats are the volatile counters of a live transfer.
type Stats struct {
	Downloaded    int64
	Uploaded      int64
	DownloadSpeed int64
	UploadSpeed   int64
	NumPeers      int
	TimeRemaining int64
}

// AddOptions are the reconstruction parameters passed to the engine on add or resume.
type AddOptions struct {
	Announce []string
	Path     string
	Private  bool
}

// SeedOptions configure creation of a new transfer from local content.
type SeedOptions struct {
	CreatorLabel   string
	Private        bool
	CustomTrackers []string
	Name           string
}

// TorrentView is one entry of a published snapshot.
type TorrentView struct {
	Name            string   `json:"name"`
	InfoHash        string   `json:"infoHash"`
	MagnetURI       string   `json:"magnetURI"`
	Announce        []string `json:"announce"`
	Paused          bool     `json:"paused"`
	PieceLength     int64    `json:"pieceLength"`
	LastPieceLength int64    `json:"lastPieceLength"`
	Length          int64    `json:"length"`
	Path            string   `json:"path"`
	Downloaded      int64    `json:"downloaded"`
	Uploaded        int64    `json:"uploaded"`
	DownloadSpeed   int64    `json:"downloadSpeed"`
	UploadSpeed     int64    `json:"uploadSpeed"`
	NumPeers        *int     `json:"numPeers,omitempty"`
	TimeRemaining   *int64   `json:"timeRemaining,omitempty"`
}

// NewTorrentView merges static record fields with live stats. A nil stats means the record is paused.
func NewTorrentView(r TorrentRecord, stats *Stats) TorrentView {
	announce := r.Announce
	if announce == nil {
		announce = []string{}
	}
	v := TorrentView{
		Name:            r.Name,
		InfoHash:        r.InfoHash,
		MagnetURI:       r.MagnetURI,
		Announce:        append([]string(nil), announce...),
		Paused:          r.Paused,
		PieceLength:     r.PieceLength,
		LastPieceLength: r.LastPieceLength,
		Length:          r.Length,
		Path:            r.Path,
	}
	if stats == nil {
		return v
	}
	peers := stats.NumPeers
	remaining := stats.TimeRemaining
	v.Downloaded = stats.Downloaded
	v.Uploaded = stats.Uploaded
	v.DownloadSpeed = stats.DownloadSpeed
	v.UploadSpeed = stats.UploadSpeed
	v.NumPeers = &peers
	v.TimeRemaining = &remaining
	return v
}
