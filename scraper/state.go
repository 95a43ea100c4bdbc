package scraper

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aluiziolira/go-scrape-catalog/dedup"
	"github.com/aluiziolira/go-scrape-catalog/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

type listingTask struct {
	url  string
	seed string
	page int
}

type detailTask struct {
	url string
	seq int
}

// CrawlState is the mutable state of a single Run. The frontier fields are
// owned by the listing goroutine; everything below mu is shared with the
// detail workers. queued remembers recently queued detail URLs only, so a URL
// evicted from it may be fetched again and is then settled by the registry.
type CrawlState struct {
	frontier []listingTask
	enqueued map[string]struct{}
	visited  map[string]struct{}
	queued   *lru.Cache[string, struct{}]
	nextSeq  int

	mu               sync.Mutex
	registry         *dedup.Registry
	records          map[int]*models.ProductRecord
	failedURLs       []string
	errorsByType     map[string]int
	listingPages     int
	detailPages      int
	duplicates       int
	extractionIssues int
	malformed        int
	cycleStops       int
}

func newCrawlState(seeds []string, recentURLs int) (*CrawlState, error) {
	queued, err := lru.New[string, struct{}](recentURLs)
	if err != nil {
		return nil, fmt.Errorf("create detail url cache: %w", err)
	}
	st := &CrawlState{
		enqueued:     make(map[string]struct{}),
		visited:      make(map[string]struct{}),
		queued:       queued,
		registry:     dedup.NewRegistry(),
		records:      make(map[int]*models.ProductRecord),
		errorsByType: make(map[string]int),
	}
	for _, seed := range seeds {
		st.push(listingTask{url: seed, seed: seed, page: 1})
	}
	return st, nil
}

// push enqueues a listing URL unless it is already enqueued or visited.
func (st *CrawlState) push(task listingTask) bool {
	if _, ok := st.enqueued[task.url]; ok {
		return false
	}
	st.enqueued[task.url] = struct{}{}
	st.frontier = append(st.frontier, task)
	return true
}

func (st *CrawlState) pop() (listingTask, bool) {
	if len(st.frontier) == 0 {
		return listingTask{}, false
	}
	task := st.frontier[0]
	st.frontier = st.frontier[1:]
	st.visited[task.url] = struct{}{}
	return task, true
}

func (st *CrawlState) wasVisited(url string) bool {
	_, ok := st.visited[url]
	return ok
}

// queueDetail assigns a discovery sequence to a detail URL unless it was
// queued recently.
func (st *CrawlState) queueDetail(url string) (detailTask, bool) {
	if seen, _ := st.queued.ContainsOrAdd(url, struct{}{}); seen {
		return detailTask{}, false
	}
	task := detailTask{url: url, seq: st.nextSeq}
	st.nextSeq++
	return task, true
}

// settle keeps the record discovered first for each ID, whatever order the
// detail pages finish in. It reports whether the run now holds a duplicate
// it did not before, which is either record or the one it displaced.
func (st *CrawlState) settle(seq int, record *models.ProductRecord) (kept, duplicate bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	held, displaced, replaced := st.registry.Offer(record.ID, seq)
	if !held {
		st.duplicates++
		return false, true
	}
	st.records[seq] = record
	if replaced {
		delete(st.records, displaced)
		st.duplicates++
		return true, true
	}
	return true, false
}

func (st *CrawlState) addFailure(url, category string) {
	st.mu.Lock()
	st.failedURLs = append(st.failedURLs, url)
	st.errorsByType[category]++
	st.mu.Unlock()
}

func (st *CrawlState) countError(category string) {
	st.mu.Lock()
	st.errorsByType[category]++
	st.mu.Unlock()
}

func (st *CrawlState) inc(counter *int) {
	st.mu.Lock()
	*counter++
	st.mu.Unlock()
}

// result snapshots the state into a ScrapeResult with records in discovery
// order.
func (st *CrawlState) result() *models.ScrapeResult {
	st.mu.Lock()
	defer st.mu.Unlock()

	seqs := make([]int, 0, len(st.records))
	for seq := range st.records {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)
	records := make([]*models.ProductRecord, len(seqs))
	for i, seq := range seqs {
		records[i] = st.records[seq]
	}

	failed := make([]string, len(st.failedURLs))
	copy(failed, st.failedURLs)
	errorsByType := make(map[string]int, len(st.errorsByType))
	for k, v := range st.errorsByType {
		errorsByType[k] = v
	}

	return &models.ScrapeResult{
		Records:           records,
		ListingPages:      st.listingPages,
		DetailPages:       st.detailPages,
		Duplicates:        st.duplicates,
		ExtractionIssues:  st.extractionIssues,
		MalformedListings: st.malformed,
		CycleStops:        st.cycleStops,
		FailedURLs:        failed,
		ErrorsByType:      errorsByType,
	}
}
