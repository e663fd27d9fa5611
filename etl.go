//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of LaunchETL.
//
// LaunchETL is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// LaunchETL is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with LaunchETL. If not, see https://www.gnu.org/licenses/.

package launchetl

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aaronlmathis/launchetl/aggregate"
	"github.com/aaronlmathis/launchetl/config"
	"github.com/aaronlmathis/launchetl/core"
	"github.com/aaronlmathis/launchetl/internal/logger"
	"github.com/aaronlmathis/launchetl/readers"
	"github.com/aaronlmathis/launchetl/transform"
	"github.com/aaronlmathis/launchetl/writers"
)

// Sink names reported in RunReport.Sinks and StageError.Sink.
const (
	SinkCSV     = "csv"
	SinkParquet = "parquet"
	SinkJSON    = "json"
	SinkMongo   = "mongo"
	SinkS3      = "s3"
)

// API resources fetched by the extract stage.
const (
	ResourceLaunches = "launches"
	ResourceRockets  = "rockets"
)

// RunReport summarizes one run of the job.
type RunReport struct {
	RunID          string
	StartedAt      time.Time
	Elapsed        time.Duration
	Launches       int            // Raw launches fetched
	Rockets        int            // Raw rockets fetched
	Records        int            // Launch records produced
	UnknownRockets int            // Records whose rocket_name is transform.UnknownRocket
	RocketCounts   map[string]int // Launch records per rocket name
	Outcomes       map[string]int // Launch records per success value ("true", "false", "null")
	Sinks          []string       // Sinks written, in order
	Files          []string       // Files exported
	Published      []string       // Object keys published to S3
	LoadSkipped    bool           // True when DryRun skipped the load stage
}

// JobOption configures a Job.
type JobOption func(*Job)

// WithHTTPClient replaces the client used for the API requests.
func WithHTTPClient(client *http.Client) JobOption {
	return func(j *Job) {
		j.httpClient = client
	}
}

// WithLogger sets the logger. Without it the logger is taken from the context.
func WithLogger(log logger.Logger) JobOption {
	return func(j *Job) {
		j.log = log
	}
}

// WithS3Client replaces the S3 client built from the AWS configuration.
func WithS3Client(client writers.S3PutObjectAPI) JobOption {
	return func(j *Job) {
		j.s3Client = client
	}
}

// WithMongoCollection replaces the collection the MongoDB load connects to.
func WithMongoCollection(collection writers.MongoCollection) JobOption {
	return func(j *Job) {
		j.mongoCollection = collection
	}
}

// Job runs the launch ETL: extract launches and rockets, join them, export
// the records to files and load them into the configured stores.
type Job struct {
	cfg             config.Config
	httpClient      *http.Client
	log             logger.Logger
	s3Client        writers.S3PutObjectAPI
	mongoCollection writers.MongoCollection
}

// NewJob validates cfg and returns a job ready to Run.
func NewJob(cfg config.Config, opts ...JobOption) (*Job, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	job := &Job{cfg: cfg}
	for _, opt := range opts {
		opt(job)
	}
	return job, nil
}

// Config returns the job configuration.
func (j *Job) Config() config.Config {
	return j.cfg
}

func (j *Job) logger(ctx context.Context) logger.Logger {
	if j.log != nil {
		return j.log
	}
	return logger.FromContext(ctx)
}

// Endpoint returns the URL of an API resource.
func (j *Job) Endpoint(resource string) string {
	return strings.TrimRight(j.cfg.APIBaseURL, "/") + "/" + resource
}

func (j *Job) httpOptions() []readers.ReaderOptionHTTP {
	opts := []readers.ReaderOptionHTTP{readers.WithHTTPTimeout(j.cfg.Timeout)}
	if j.cfg.UserAgent != "" {
		opts = append(opts, readers.WithHTTPUserAgent(j.cfg.UserAgent))
	}
	if j.httpClient != nil {
		opts = append(opts, readers.WithHTTPClient(j.httpClient))
	}
	return opts
}

// FetchLaunches performs one GET of the launches collection.
func (j *Job) FetchLaunches(ctx context.Context) ([]core.Record, error) {
	return j.fetch(ctx, ResourceLaunches)
}

// FetchRockets performs one GET of the rockets collection.
func (j *Job) FetchRockets(ctx context.Context) ([]core.Record, error) {
	return j.fetch(ctx, ResourceRockets)
}

func (j *Job) fetch(ctx context.Context, resource string) ([]core.Record, error) {
	log := j.logger(ctx)
	url := j.Endpoint(resource)

	start := time.Now()
	records, err := readers.FetchAll(ctx, url, j.httpOptions()...)
	if err != nil {
		return nil, err
	}
	log.Debug("fetched collection", "resource", resource, "records", len(records), "duration", time.Since(start))
	return records, nil
}

// Extract fetches launches and rockets concurrently. Both must succeed; the
// first failure cancels the other request.
func (j *Job) Extract(ctx context.Context) (launches, rockets []core.Record, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		launches, err = j.FetchLaunches(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rockets, err = j.FetchRockets(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, &core.StageError{Stage: core.StageExtract, Err: err}
	}
	return launches, rockets, nil
}

// Transform joins every launch to its rocket name and projects the launch
// columns. It never fails and keeps the launch order.
func (j *Job) Transform(launches, rockets []core.Record) ([]core.Record, transform.RocketLookup) {
	lookup := transform.NewRocketLookup(rockets)
	return transform.Launches(launches, lookup), lookup
}

// stream pushes records through a pipeline into sink. The sink is flushed
// on success and closed on every path.
func stream(ctx context.Context, records []core.Record, sink core.DataSink) (int64, error) {
	pipeline, err := NewPipeline().
		From(readers.NewSliceReader(records)).
		To(sink).
		Build()
	if err != nil {
		_ = sink.Close()
		return 0, err
	}
	err = pipeline.Execute(ctx)
	return pipeline.Written(), err
}

type fileExport struct {
	sink string
	path string
	open func(records []core.Record) (core.DataSink, error)
}

func (j *Job) fileExports() []fileExport {
	exports := []fileExport{{
		sink: SinkCSV,
		path: j.cfg.ExportCSV,
		open: func(records []core.Record) (core.DataSink, error) {
			if err := writers.ValidateCSVExport(records); err != nil {
				return nil, err
			}
			return writers.CreateCSVFile(j.cfg.ExportCSV, writers.WithHeaders(writers.CSVHeaders(records)))
		},
	}}
	if j.cfg.ExportParquet != "" {
		exports = append(exports, fileExport{
			sink: SinkParquet,
			path: j.cfg.ExportParquet,
			open: func([]core.Record) (core.DataSink, error) {
				return writers.NewParquetWriter(j.cfg.ExportParquet)
			},
		})
	}
	if j.cfg.ExportJSON != "" {
		exports = append(exports, fileExport{
			sink: SinkJSON,
			path: j.cfg.ExportJSON,
			open: func([]core.Record) (core.DataSink, error) {
				return writers.CreateJSONFile(j.cfg.ExportJSON)
			},
		})
	}
	return exports
}

// Export writes records to the CSV file and to the optional Parquet and
// JSON lines files. It returns the paths written. Exports run before the
// dry-run check, so they happen on every run.
func (j *Job) Export(ctx context.Context, records []core.Record) ([]string, error) {
	log := j.logger(ctx)

	files := make([]string, 0, 3)
	for _, export := range j.fileExports() {
		sink, err := export.open(records)
		if err != nil {
			return files, &core.StageError{Stage: core.StageExport, Sink: export.sink, Err: err}
		}
		written, err := stream(ctx, records, sink)
		if err != nil {
			return files, &core.StageError{Stage: core.StageExport, Sink: export.sink, Err: err}
		}
		log.Info("transformed data exported", "sink", export.sink, "path", export.path, "records", written)
		files = append(files, export.path)
	}
	return files, nil
}

// Load upserts records into the SQL database in a single transaction.
func (j *Job) Load(ctx context.Context, records []core.Record) error {
	log := j.logger(ctx)

	dialect, err := j.cfg.Dialect()
	if err != nil {
		return &core.StageError{Stage: core.StageLoad, Err: fmt.Errorf("%w: %w", core.ErrPrecondition, err)}
	}

	writer, err := writers.NewSQLWriter(
		writers.WithSQLDialect(dialect),
		writers.WithDSN(j.cfg.DSN()),
		writers.WithTableName(j.cfg.TableName),
		writers.WithSQLQueryTimeout(j.cfg.Timeout),
		writers.WithSQLContext(ctx),
	)
	if err != nil {
		return &core.StageError{Stage: core.StageLoad, Sink: string(dialect), Err: err}
	}

	written, err := stream(ctx, records, writer)
	if err != nil {
		return &core.StageError{Stage: core.StageLoad, Sink: string(dialect), Err: err}
	}

	args := []interface{}{"dialect", dialect, "table", j.cfg.TableName, "records", written}
	if dialect == writers.DialectSQLite {
		args = append(args, "path", j.cfg.DBPath)
	}
	log.Info("ETL complete, data loaded into database", args...)
	return nil
}

// LoadMongo upserts records into the configured collection. It returns
// false when MongoDB is not configured.
func (j *Job) LoadMongo(ctx context.Context, records []core.Record, runID string) (bool, error) {
	if j.cfg.Mongo.URI == "" {
		return false, nil
	}
	log := j.logger(ctx)

	opts := []writers.WriterOptionMongo{
		writers.WithMongoConnectTimeout(j.cfg.Timeout),
		writers.WithMongoMetadata(map[string]string{"run_id": runID}),
	}

	var writer *writers.MongoWriter
	if j.mongoCollection != nil {
		writer = writers.NewMongoCollectionWriter(j.mongoCollection, opts...)
	} else {
		var err error
		writer, err = writers.NewMongoWriter(ctx, j.cfg.Mongo.URI, j.cfg.Mongo.Database, j.cfg.Mongo.Collection, opts...)
		if err != nil {
			return false, &core.StageError{Stage: core.StageLoad, Sink: SinkMongo, Err: err}
		}
	}

	written, err := stream(ctx, records, writer)
	if err != nil {
		return false, &core.StageError{Stage: core.StageLoad, Sink: SinkMongo, Err: err}
	}
	log.Info("data upserted into mongodb", "database", j.cfg.Mongo.Database, "collection", j.cfg.Mongo.Collection, "records", written)
	return true, nil
}

// Publish uploads the exported files to S3. It returns no keys when S3 is
// not configured.
func (j *Job) Publish(ctx context.Context, files []string) ([]string, error) {
	if j.cfg.S3.Bucket == "" {
		return nil, nil
	}
	log := j.logger(ctx)

	opts := []writers.PublisherOptionS3{
		writers.WithS3Bucket(j.cfg.S3.Bucket),
		writers.WithS3Prefix(j.cfg.S3.Prefix),
		writers.WithS3Region(j.cfg.S3.Region),
		writers.WithS3Profile(j.cfg.S3.Profile),
		writers.WithS3Endpoint(j.cfg.S3.Endpoint, j.cfg.S3.ForcePathStyle),
	}
	if j.s3Client != nil {
		opts = append(opts, writers.WithS3Client(j.s3Client))
	}

	publisher, err := writers.NewS3Publisher(ctx, opts...)
	if err != nil {
		return nil, &core.StageError{Stage: core.StagePublish, Sink: SinkS3, Err: err}
	}
	keys, err := publisher.Publish(ctx, files...)
	if err != nil {
		return keys, &core.StageError{Stage: core.StagePublish, Sink: SinkS3, Err: err}
	}
	log.Info("exports published", "bucket", publisher.Bucket(), "objects", len(keys))
	return keys, nil
}

// summarize fills the record counts of report.
func summarize(ctx context.Context, report *RunReport, records []core.Record) error {
	byRocket := aggregate.CountBy(core.FieldRocketName)
	byOutcome := aggregate.CountBy(core.FieldSuccess)
	if err := aggregate.Apply(ctx, records, byRocket, byOutcome); err != nil {
		return err
	}
	report.Records = len(records)
	report.RocketCounts = byRocket.Counts()
	report.Outcomes = byOutcome.Counts()
	report.UnknownRockets = report.RocketCounts[transform.UnknownRocket]
	return nil
}

// Run executes one complete run. Stages run in order and the first failure
// aborts the run with a *core.StageError. The report is returned on failure
// too, holding whatever completed before the failing stage.
func (j *Job) Run(ctx context.Context) (*RunReport, error) {
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	defer func() {
		report.Elapsed = time.Since(report.StartedAt)
	}()

	ctx, log := logger.WithRun(ctx, j.logger(ctx), report.RunID)

	log.Info("starting extract", "api_url", j.cfg.APIBaseURL)
	launches, rockets, err := j.Extract(ctx)
	if err != nil {
		return report, err
	}
	report.Launches = len(launches)
	report.Rockets = len(rockets)
	log.Info("extract finished", "launches", report.Launches, "rockets", report.Rockets)

	records, lookup := j.Transform(launches, rockets)
	if err := summarize(ctx, report, records); err != nil {
		return report, &core.StageError{Stage: core.StageTransform, Err: err}
	}
	log.Info("transform finished", "records", report.Records, "rocket_lookup", lookup.Len(), "unknown_rockets", report.UnknownRockets)

	files, err := j.Export(ctx, records)
	report.Files = files
	report.Sinks = append(report.Sinks, exportedSinks(j.fileExports(), len(files))...)
	if err != nil {
		return report, err
	}

	if j.cfg.DryRun {
		log.Info("dry run mode enabled, skipping database write")
		report.LoadSkipped = true
		return report, nil
	}

	if err := j.Load(ctx, records); err != nil {
		return report, err
	}
	dialect, _ := j.cfg.Dialect()
	report.Sinks = append(report.Sinks, string(dialect))

	loaded, err := j.LoadMongo(ctx, records, report.RunID)
	if err != nil {
		return report, err
	}
	if loaded {
		report.Sinks = append(report.Sinks, SinkMongo)
	}

	keys, err := j.Publish(ctx, files)
	report.Published = keys
	if err != nil {
		return report, err
	}
	if len(keys) > 0 {
		report.Sinks = append(report.Sinks, SinkS3)
	}

	log.Info("run finished", "records", report.Records, "sinks", strings.Join(report.Sinks, ","))
	return report, nil
}

func exportedSinks(exports []fileExport, n int) []string {
	sinks := make([]string, 0, n)
	for _, export := range exports[:n] {
		sinks = append(sinks, export.sink)
	}
	return sinks
}
