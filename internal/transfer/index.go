package transfer

import "sync"

type connSessions struct {
	uploads   map[string]struct{}
	downloads map[string]struct{}
}

// connIndex maps a connection id to the session tokens it owns.
type connIndex struct {
	mu     sync.Mutex
	byConn map[string]*connSessions
}

func newConnIndex() *connIndex {
	return &connIndex{byConn: make(map[string]*connSessions)}
}

func (x *connIndex) entry(connID string) *connSessions {
	e, ok := x.byConn[connID]
	if !ok {
		e = &connSessions{
			uploads:   make(map[string]struct{}),
			downloads: make(map[string]struct{}),
		}
		x.byConn[connID] = e
	}
	return e
}

func (x *connIndex) addUpload(connID, token string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entry(connID).uploads[token] = struct{}{}
}

func (x *connIndex) addDownload(connID, token string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.entry(connID).downloads[token] = struct{}{}
}

func (x *connIndex) removeUpload(connID, token string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.byConn[connID]; ok {
		delete(e.uploads, token)
		x.prune(connID, e)
	}
}

func (x *connIndex) removeDownload(connID, token string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.byConn[connID]; ok {
		delete(e.downloads, token)
		x.prune(connID, e)
	}
}

func (x *connIndex) prune(connID string, e *connSessions) {
	if len(e.uploads) == 0 && len(e.downloads) == 0 {
		delete(x.byConn, connID)
	}
}

// take removes and returns every token owned by connID.
func (x *connIndex) take(connID string) (uploads, downloads []string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.byConn[connID]
	if !ok {
		return nil, nil
	}
	delete(x.byConn, connID)
	for t := range e.uploads {
		uploads = append(uploads, t)
	}
	for t := range e.downloads {
		downloads = append(downloads, t)
	}
	return uploads, downloads
}

func (x *connIndex) count(connID string) (uploads, downloads int) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.byConn[connID]; ok {
		return len(e.uploads), len(e.downloads)
	}
	return 0, 0
}
