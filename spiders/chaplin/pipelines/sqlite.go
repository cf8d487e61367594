package pipelines

import (
	"context"
	"time"

	"github.com/google/uuid"

	scrapy "github.com/siskinc/scrapy-charlie-chaplin"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/items"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/worker"
)

const RecordTable = "records"

const recordSchema = `CREATE TABLE IF NOT EXISTS records (
	video_url   TEXT PRIMARY KEY,
	crawl_id    TEXT NOT NULL,
	created_at  DATETIME NOT NULL,
	thumbnail   TEXT NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL,
	date        TEXT NOT NULL
)`

var recordColumns = []string{"crawl_id", "created_at", "thumbnail", "title", "description", "date", "video_url"}

// SqlitePipeline upserts records keyed by video url. Rows written by one
// crawl share a crawl id.
type SqlitePipeline struct {
	Path      string
	BatchSize int
	Flush     time.Duration

	crawlID       string
	dbWriteWorker *worker.DatabaseWriterWorker
}

func NewSqlitePipeline(path string, batchSize int, flush time.Duration) *SqlitePipeline {
	return &SqlitePipeline{Path: path, BatchSize: batchSize, Flush: flush}
}

func (p *SqlitePipeline) OpenSpider(spider scrapy.Spider) error {
	dbWriteWorker, err := worker.NewDatabaseWorker(&worker.SqliteInfo{
		Path:   p.Path,
		Table:  RecordTable,
		Schema: recordSchema,
	}, recordColumns, p.BatchSize, p.Flush, p.BatchSize*2)
	if err != nil {
		return err
	}
	p.crawlID = uuid.NewString()
	p.dbWriteWorker = dbWriteWorker
	go dbWriteWorker.Start(context.Background())
	return nil
}

func (p *SqlitePipeline) CloseSpider(spider scrapy.Spider) error {
	if p.dbWriteWorker == nil {
		return nil
	}
	err := p.dbWriteWorker.Close()
	p.dbWriteWorker = nil
	return err
}

func (p *SqlitePipeline) CrawlID() string {
	return p.crawlID
}

func (p *SqlitePipeline) ProcessItem(item any, spider scrapy.Spider) error {
	record, ok := item.(*items.Record)
	if !ok {
		return nil
	}
	p.dbWriteWorker.SqlInfoChan <- []any{
		p.crawlID,
		time.Now().UTC(),
		record.Thumbnail,
		record.Title,
		record.Description,
		record.Date,
		record.VideoURL,
	}
	return nil
}
