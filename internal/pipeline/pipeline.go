// Package pipeline wires archive export, download, assembly, FITS output,
// publishing and cataloguing into one run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/YoungMasterGandalf/thesis-work/internal/catalog"
	"github.com/YoungMasterGandalf/thesis-work/internal/config"
	"github.com/YoungMasterGandalf/thesis-work/internal/download"
	"github.com/YoungMasterGandalf/thesis-work/internal/fitsframe"
	"github.com/YoungMasterGandalf/thesis-work/internal/helio"
	"github.com/YoungMasterGandalf/thesis-work/internal/jsoc"
	"github.com/YoungMasterGandalf/thesis-work/internal/ledger"
	"github.com/YoungMasterGandalf/thesis-work/internal/logging"
	"github.com/YoungMasterGandalf/thesis-work/internal/metrics"
)

// DefaultFilename names the cube when neither a filename nor a request is
// configured.
const DefaultFilename = "datacube"

// Publisher uploads the files of one run.
type Publisher interface {
	Publish(ctx context.Context, run string, files []string) ([]string, error)
}

// Catalogue records the outcome of a run.
type Catalogue interface {
	RecordRun(ctx context.Context, run *catalog.Run) error
}

// Deps are the collaborators of a Pipeline. Archive and Transport are only
// needed when frames come from the archive; Publisher and Catalogue are
// optional.
type Deps struct {
	Archive     jsoc.Archive
	Transport   download.Transport
	Loader      helio.FrameLoader
	Reprojector helio.Reprojector
	Publisher   Publisher
	Catalogue   Catalogue
	Metrics     *metrics.PipelineMetrics
	Now         func() time.Time
}

type Pipeline struct {
	cfg       *config.Config
	logger    *logging.PipelineLogger
	metrics   *metrics.PipelineMetrics
	archive   jsoc.Archive
	transport download.Transport
	assembler *helio.Assembler
	publisher Publisher
	catalogue Catalogue
	now       func() time.Time
}

// FetchResult describes the frames acquired for one request.
type FetchResult struct {
	RequestName string
	Directory   string
	Outcomes    []download.Outcome
	Report      *jsoc.Report
	ReportFiles []string
	LedgerPath  string
}

// LocalPaths lists the downloaded files in manifest order.
func (f *FetchResult) LocalPaths() []string {
	paths := make([]string, len(f.Outcomes))
	for i, o := range f.Outcomes {
		paths[i] = o.LocalPath
	}
	return paths
}

// Result describes one completed run.
type Result struct {
	RunID      uuid.UUID
	OutputPath string
	Frames     int
	Fetch      *FetchResult
	Published  []string
}

func New(cfg *config.Config, logger *logging.PipelineLogger, deps Deps) *Pipeline {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		metrics:   deps.Metrics,
		archive:   deps.Archive,
		transport: deps.Transport,
		assembler: helio.NewAssembler(deps.Loader, deps.Reprojector, logger.Logger, deps.Metrics),
		publisher: deps.Publisher,
		catalogue: deps.Catalogue,
		now:       now,
	}
}

// OutputFilename is the configured filename, or the name derived from the
// request and origin, or DefaultFilename.
func (p *Pipeline) OutputFilename() string {
	if p.cfg.Filename != "" {
		return p.cfg.Filename
	}
	if p.cfg.DopplRequest != "" {
		o := p.cfg.OriginSpec()
		return jsoc.DatacubeName(p.cfg.DopplRequest, o.Longitude, o.Latitude, o.DriftVelocity)
	}
	return DefaultFilename
}

func (p *Pipeline) reportDir() string {
	return filepath.Join(p.cfg.OutputDir, jsoc.FrameInfoDir)
}

// Export submits request and waits until its manifest is ready.
func (p *Pipeline) Export(ctx context.Context, request string) (jsoc.Manifest, error) {
	if p.archive == nil {
		return nil, errors.New("no archive configured")
	}
	job := jsoc.NewExportJob(p.archive, jsoc.ExportOptions{
		Request:  request,
		Notify:   p.cfg.JSOCEmail,
		Method:   "url",
		Protocol: jsoc.ProtocolFITS,
	}, p.logger.Logger,
		jsoc.WithPollInterval(p.cfg.PollInterval),
		jsoc.WithMetrics(p.metrics),
	)
	if err := job.Submit(ctx); err != nil {
		return nil, fmt.Errorf("failed to submit export: %w", err)
	}
	if err := job.AwaitReady(ctx, p.cfg.ExportTimeout); err != nil {
		return nil, fmt.Errorf("export %s: %w", job.RequestID(), err)
	}
	return job.Consume()
}

// Gaps exports the configured request and writes its record-time reports
// without downloading anything.
func (p *Pipeline) Gaps(ctx context.Context) (*jsoc.Report, []string, error) {
	manifest, err := p.Export(ctx, p.cfg.DopplRequest)
	if err != nil {
		return nil, nil, err
	}
	return p.writeReport(manifest)
}

func (p *Pipeline) writeReport(manifest jsoc.Manifest) (*jsoc.Report, []string, error) {
	report, err := jsoc.NewReport(p.cfg.DopplRequest, manifest.RecordNames(), p.cfg.Step())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read record times: %w", err)
	}
	files, err := report.Write(p.reportDir())
	if err != nil {
		return nil, nil, err
	}

	p.metrics.RecordMissingFrames(len(report.Missing))
	p.logger.LogMissingFrames(report.RequestName, jsoc.FormatTimes(report.Missing))
	p.logger.LogPipelineEvent("report_written",
		zap.String("request_name", report.RequestName),
		zap.Int("records", len(report.RecordTimes)),
		zap.Int("missing", len(report.Missing)))
	return report, files, nil
}

// Fetch exports the configured request, writes the reports and downloads
// every frame into a directory derived from drms_files_path.
func (p *Pipeline) Fetch(ctx context.Context) (*FetchResult, error) {
	if err := p.cfg.ValidateArchive(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if p.transport == nil {
		return nil, errors.New("no download transport configured")
	}

	manifest, err := p.Export(ctx, p.cfg.DopplRequest)
	if err != nil {
		return nil, err
	}
	report, reportFiles, err := p.writeReport(manifest)
	if err != nil {
		return nil, err
	}

	timer := metrics.NewTimer()
	dl := download.New(p.transport, p.logger.Logger,
		download.WithRetryDelay(p.cfg.RetryDelay),
		download.WithClock(p.now),
		download.WithMetrics(p.metrics),
	)
	outcomes, dir, err := dl.DownloadAll(ctx, manifest, p.cfg.DRMSFilesPath, p.cfg.DownloadAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to download export: %w", err)
	}
	p.logger.LogStageDuration("download", timer.Duration())

	ledgerPath := ledger.Path(p.reportDir(), report.RequestName)
	if err := ledger.Write(ledgerPath, outcomes); err != nil {
		return nil, err
	}

	return &FetchResult{
		RequestName: report.RequestName,
		Directory:   dir,
		Outcomes:    outcomes,
		Report:      report,
		ReportFiles: reportFiles,
		LedgerPath:  ledgerPath,
	}, nil
}

// Assemble builds the cube from the frame files in dir.
func (p *Pipeline) Assemble(ctx context.Context, dir string) (*helio.Datacube, *helio.Header, error) {
	return p.assemble(func(params helio.Params) (*helio.Datacube, *helio.Header, error) {
		return p.assembler.AssembleFolder(ctx, dir, params)
	})
}

// AssembleFiles builds the cube from exactly the given frame files.
func (p *Pipeline) AssembleFiles(ctx context.Context, paths []string) (*helio.Datacube, *helio.Header, error) {
	return p.assemble(func(params helio.Params) (*helio.Datacube, *helio.Header, error) {
		return p.assembler.Assemble(ctx, paths, params)
	})
}

func (p *Pipeline) assemble(build func(helio.Params) (*helio.Datacube, *helio.Header, error)) (*helio.Datacube, *helio.Header, error) {
	if err := p.cfg.ValidateGeometry(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	timer := metrics.NewTimer()
	cube, header, err := build(p.cfg.AssemblyParams())
	if err != nil {
		return nil, nil, err
	}
	p.logger.LogStageDuration("assembly", timer.Duration())
	return cube, header, nil
}

// AssembleAndWrite builds the cube from dir and writes it to the output
// directory, returning the written path and frame count.
func (p *Pipeline) AssembleAndWrite(ctx context.Context, dir string) (string, int, error) {
	return p.write(p.Assemble(ctx, dir))
}

func (p *Pipeline) write(cube *helio.Datacube, header *helio.Header, err error) (string, int, error) {
	if err != nil {
		return "", 0, err
	}
	path, err := fitsframe.WriteDatacube(p.cfg.OutputDir, p.OutputFilename(), cube, header)
	if err != nil {
		return "", 0, fmt.Errorf("failed to write datacube: %w", err)
	}
	p.logger.LogPipelineEvent("datacube_written",
		zap.String("path", path),
		zap.Int("frames", cube.Frames),
		zap.Int("rows", cube.Rows),
		zap.Int("cols", cube.Cols))
	return path, cube.Frames, nil
}

// Run performs a full run: acquire frames (archive or local folder), build
// and write the cube, clean up, publish and catalogue.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	origin := p.cfg.OriginSpec()
	entry := &catalog.Run{
		ID:          uuid.New(),
		Request:     p.cfg.DopplRequest,
		RequestName: jsoc.RequestName(p.cfg.DopplRequest),
		OriginLon:   origin.Longitude,
		OriginLat:   origin.Latitude,
		Velocity:    origin.DriftVelocity,
		StartedAt:   p.now().UTC(),
	}
	log := p.logger.WithRun(entry.ID.String())
	log.LogPipelineEvent("run_started",
		zap.Bool("via_archive", p.cfg.RunViaDRMS),
		zap.String("request", p.cfg.DopplRequest))

	result, err := p.run(ctx, entry)
	entry.FinishedAt = p.now().UTC()
	if err != nil {
		entry.Status = catalog.StatusFailed
		entry.Error = err.Error()
		p.metrics.RecordError("run")
	} else {
		entry.Status = catalog.StatusSucceeded
	}
	p.record(ctx, entry)

	if err != nil {
		log.Error("Run failed", zap.Error(err))
		return nil, err
	}
	log.LogPipelineEvent("run_finished",
		zap.String("output", result.OutputPath),
		zap.Int("frames", result.Frames))
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, entry *catalog.Run) (*Result, error) {
	result := &Result{RunID: entry.ID}

	var (
		path   string
		frames int
		err    error
	)
	dir := p.cfg.FolderPath
	if p.cfg.RunViaDRMS {
		fetched, ferr := p.Fetch(ctx)
		if ferr != nil {
			return nil, ferr
		}
		result.Fetch = fetched
		entry.MissingFrames = len(fetched.Report.Missing)
		dir = fetched.Directory
		// Assemble what was downloaded, including collision copies.
		path, frames, err = p.write(p.AssembleFiles(ctx, fetched.LocalPaths()))
	} else {
		path, frames, err = p.AssembleAndWrite(ctx, dir)
	}
	if err != nil {
		return nil, err
	}
	result.OutputPath = path
	result.Frames = frames
	entry.OutputPath = path
	entry.Frames = frames

	if p.cfg.RunViaDRMS && p.cfg.DeleteFilesWhenFinished {
		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("failed to remove downloaded frames %s: %w", dir, err)
		}
		p.logger.Info("Removed downloaded frames", zap.String("directory", dir))
	}

	if p.publisher != nil {
		files := []string{path}
		if result.Fetch != nil {
			files = append(files, result.Fetch.ReportFiles...)
			files = append(files, result.Fetch.LedgerPath)
		}
		keys, err := p.publisher.Publish(ctx, entry.ID.String(), files)
		if err != nil {
			return nil, fmt.Errorf("failed to publish run: %w", err)
		}
		result.Published = keys
	}
	return result, nil
}

// record stores entry in the catalogue. A catalogue failure is logged but
// does not fail the run.
func (p *Pipeline) record(ctx context.Context, entry *catalog.Run) {
	if p.catalogue == nil {
		return
	}
	if err := p.catalogue.RecordRun(context.WithoutCancel(ctx), entry); err != nil {
		p.metrics.RecordError("catalog")
		p.logger.Warn("Failed to record run",
			zap.String("run_id", entry.ID.String()),
			zap.Error(err))
	}
}
