package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CK6170/gravtie-go/database"
	"github.com/CK6170/gravtie-go/dgs"
	"github.com/CK6170/gravtie-go/internal/config"
	"github.com/CK6170/gravtie-go/models"
	"github.com/CK6170/gravtie-go/session"
	"github.com/CK6170/gravtie-go/tie"
)

type screen int

const (
	screenEntry screen = iota
	screenSteps
	screenDone
)

type options struct {
	cfg     config.Config
	db      *database.DB
	replay  *session.SeriesClock
	tiePath string
}

type model struct {
	scr  screen
	opts options

	entryInput textinput.Model
	stepInput  textinput.Model

	sess     *session.Session
	tiePath  string
	steps    []session.Step
	stepIdx  int
	answered map[string]bool
	loaded   bool

	busy     bool
	runID    int
	lastErr  error
	infoLine string

	bias       *tie.Result
	reportPath string
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Strikethrough(true)
	curStyle   = lipgloss.NewStyle().Bold(true)
)

func initialModel(o options) model {
	in := textinput.New()
	in.Placeholder = "Path to an existing tie file (blank for a new tie)"
	in.Focus()
	in.CharLimit = 512
	in.Width = 60
	in.SetValue(o.tiePath)
	in.CursorEnd()

	si := textinput.New()
	si.CharLimit = 1024
	si.Width = 60

	return model{
		scr:        screenEntry,
		opts:       o,
		entryInput: in,
		stepInput:  si,
		answered:   map[string]bool{},
	}
}

type errMsg struct{ err error }

type tieOpenedMsg struct {
	sess *session.Session
	path string
	info string
}

type dgsLoadedMsg struct {
	runID   int
	samples int
}

type landTieDoneMsg struct {
	runID     int
	res       tie.LandTieResult
	uncovered []string
}

type biasDoneMsg struct {
	runID      int
	res        tie.Result
	reportPath string
}

type savedMsg struct{ path string }

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.scr {
		case screenEntry:
			return m.updateEntryKey(msg)
		case screenSteps:
			return m.updateStepKey(msg)
		case screenDone:
			return m.updateDoneKey(msg)
		}

	case errMsg:
		m.busy = false
		m.lastErr = msg.err
		slog.Warn("step failed", "err", msg.err)
		return m, nil

	case tieOpenedMsg:
		m.sess = msg.sess
		m.tiePath = msg.path
		m.infoLine = msg.info
		m.lastErr = nil
		m.scr = screenSteps
		m.loaded = msg.sess.SeriesLen() > 0
		m.refreshPlan()
		return m, nil

	case dgsLoadedMsg:
		if msg.runID != m.runID {
			return m, nil
		}
		m.busy = false
		m.loaded = true
		m.infoLine = fmt.Sprintf("%d meter samples loaded.", msg.samples)
		m.refreshPlan()
		return m, m.saveCmd()

	case landTieDoneMsg:
		if msg.runID != m.runID {
			return m, nil
		}
		m.busy = false
		m.infoLine = fmt.Sprintf("Land tie %.3f mGal, drift %.3g mGal/s.", msg.res.AbsoluteGravity, msg.res.Drift)
		if len(msg.uncovered) > 0 {
			m.infoLine += " Outside the calibration table: " + strings.Join(msg.uncovered, " ")
		}
		m.refreshPlan()
		return m, m.saveCmd()

	case biasDoneMsg:
		if msg.runID != m.runID {
			return m, nil
		}
		m.busy = false
		m.bias = &msg.res
		m.reportPath = msg.reportPath
		m.scr = screenDone
		return m, nil

	case savedMsg:
		slog.Debug("tie saved", "path", msg.path)
		return m, nil
	}

	// default: let inputs update
	var cmd tea.Cmd
	switch m.scr {
	case screenEntry:
		m.entryInput, cmd = m.entryInput.Update(msg)
	case screenSteps:
		m.stepInput, cmd = m.stepInput.Update(msg)
	}
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Gravity Tie") + "\n")
	b.WriteString(helpStyle.Render("Ctrl+C to quit.") + "\n\n")
	if m.infoLine != "" {
		b.WriteString(okStyle.Render(m.infoLine) + "\n")
	}
	if m.lastErr != nil {
		b.WriteString(errStyle.Render("Error: "+m.lastErr.Error()) + "\n")
	}
	b.WriteString("\n")

	switch m.scr {
	case screenEntry:
		b.WriteString("Tie file:\n")
		b.WriteString(m.entryInput.View() + "\n\n")
		b.WriteString(helpStyle.Render("Press Enter to open the file, or leave it blank to start a new tie.") + "\n")
	case screenSteps:
		b.WriteString(m.viewSteps())
	case screenDone:
		b.WriteString(m.viewDone())
	}
	return b.String()
}

func (m model) viewSteps() string {
	var b strings.Builder
	for i, st := range m.steps {
		line := st.Label + " " + string(st.Kind)
		switch {
		case i == m.stepIdx:
			b.WriteString(curStyle.Render("> "+line) + "\n")
		case st.Done || m.answered[st.Label]:
			b.WriteString(doneStyle.Render("  "+line) + "\n")
		default:
			b.WriteString("  " + line + "\n")
		}
	}
	b.WriteString("\n")
	if m.stepIdx >= len(m.steps) {
		b.WriteString("All steps answered.\n")
		return b.String()
	}
	st := m.steps[m.stepIdx]
	b.WriteString(st.Label + " " + st.Prompt + "\n\n")
	if m.busy {
		b.WriteString("Working...\n")
		return b.String()
	}
	if !isAction(st.Kind) {
		b.WriteString(m.stepInput.View() + "\n\n")
	}
	b.WriteString(helpStyle.Render("Enter to submit. Tab to skip. Esc to go back.") + "\n")
	return b.String()
}

func (m model) viewDone() string {
	var b strings.Builder
	t := m.sess.Tie()
	b.WriteString(titleStyle.Render("Bias") + "\n\n")
	if m.bias != nil {
		fmt.Fprintf(&b, "Water line gravity: %.3f mGal\n", m.bias.WaterLineGravity)
		fmt.Fprintf(&b, "Meter gravity:      %.4f mGal (%d samples, %d taps)\n",
			m.bias.AveragedMeterGravity, m.bias.Smoothing.Samples, m.bias.Smoothing.Taps)
		fmt.Fprintf(&b, "Bias:               %.4f mGal\n\n", m.bias.Bias)
	}
	fmt.Fprintf(&b, "Ship %s, station %s.\n", t.Ship.DisplayName(), t.Station.DisplayName())
	b.WriteString("Tie saved to " + m.tiePath + "\n")
	b.WriteString("Report saved to " + m.reportPath + "\n\n")
	b.WriteString(helpStyle.Render("Press Esc to return to the steps, q to quit.") + "\n")
	return b.String()
}

func isAction(k session.StepKind) bool {
	return k == session.StepComputeLandTie || k == session.StepComputeBias
}

// refreshPlan rebuilds the step list and moves to the first open step.
func (m *model) refreshPlan() {
	m.steps = session.BuildPlan(m.sess.Tie(), m.loaded)
	m.stepIdx = len(m.steps)
	for i, st := range m.steps {
		if !st.Done && !m.answered[st.Label] {
			m.stepIdx = i
			break
		}
	}
	m.stepInput.SetValue("")
	if m.stepIdx < len(m.steps) && !isAction(m.steps[m.stepIdx].Kind) {
		m.stepInput.Focus()
	} else {
		m.stepInput.Blur()
	}
}

func (m model) updateEntryKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if k.String() == "enter" {
		return m, m.openCmd(strings.TrimSpace(m.entryInput.Value()))
	}
	var cmd tea.Cmd
	m.entryInput, cmd = m.entryInput.Update(k)
	return m, cmd
}

func (m model) updateStepKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	switch k.String() {
	case "esc":
		if m.stepIdx > 0 {
			m.stepIdx--
			prev := m.steps[m.stepIdx]
			delete(m.answered, prev.Label)
			m.stepInput.SetValue("")
			m.stepInput.Focus()
		}
		return m, nil
	case "tab":
		if m.stepIdx < len(m.steps) {
			m.answered[m.steps[m.stepIdx].Label] = true
			m.refreshPlan()
		}
		return m, nil
	case "enter":
		if m.stepIdx >= len(m.steps) {
			return m, nil
		}
		m.lastErr = nil
		st := m.steps[m.stepIdx]
		cmd, err := m.apply(st, strings.TrimSpace(m.stepInput.Value()))
		if err != nil {
			m.lastErr = err
			return m, nil
		}
		if cmd != nil {
			m.busy = true
			return m, cmd
		}
		m.answered[st.Label] = true
		m.refreshPlan()
		return m, m.saveCmd()
	}
	var cmd tea.Cmd
	m.stepInput, cmd = m.stepInput.Update(k)
	return m, cmd
}

func (m model) updateDoneKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "q":
		return m, tea.Quit
	case "esc":
		m.scr = screenSteps
		m.refreshPlan()
	}
	return m, nil
}

// apply stores the answer to one step. Slow steps return a command and
// bump runID so late results from an abandoned run are ignored.
func (m *model) apply(st session.Step, v string) (tea.Cmd, error) {
	s := m.sess
	switch st.Kind {
	case session.StepShip:
		if v == "" {
			return nil, errors.New("ship name is empty")
		}
		if m.opts.db != nil && len(m.opts.db.Ships) > 0 && !contains(m.opts.db.Ships, v) {
			s.SetShip(models.Other, v)
		} else {
			s.SetShip(v, "")
		}
	case session.StepPersonnel:
		s.SetPersonnel(v)
	case session.StepStation:
		if v == "" {
			return nil, errors.New("station name is empty")
		}
		if _, ok := m.station(v); ok || m.opts.db == nil {
			s.SetStation(v, "")
		} else {
			s.SetStation(models.Other, v)
		}
	case session.StepStationGravity:
		g, err := parseFloat(v)
		if err != nil {
			return nil, err
		}
		s.SetStationGravity(g)
	case session.StepLandTie:
		switch strings.ToLower(v) {
		case "y", "yes":
			s.SetLandTie(true)
		case "n", "no", "":
			s.SetLandTie(false)
		default:
			return nil, fmt.Errorf("answer y or n")
		}
	case session.StepMeter:
		if strings.EqualFold(filepath.Ext(v), ".cal") {
			if err := s.LoadCalibration(v); err != nil {
				return nil, err
			}
			s.SetMeterName(models.Other, strings.TrimSuffix(filepath.Base(v), filepath.Ext(v)))
			return nil, nil
		}
		return nil, s.SelectMeter(v)
	case session.StepCoordinates:
		f := strings.Fields(v)
		if len(f) != 4 {
			return nil, errors.New("expected lon lat elevation temperature")
		}
		var vals [4]float64
		for i := range f {
			x, err := parseFloat(f[i])
			if err != nil {
				return nil, err
			}
			vals[i] = x
		}
		s.SetCoordinates(vals[0], vals[1], vals[2], vals[3])
	case session.StepCount:
		c, err := parseFloat(v)
		if err != nil {
			return nil, err
		}
		if _, err := s.RecordCount(st.Group, st.Index, c); err != nil {
			return nil, err
		}
	case session.StepHeight:
		h, err := session.ParseHeight(v)
		if err != nil {
			return nil, err
		}
		if _, err := s.RecordHeight(st.Index, h); err != nil {
			return nil, err
		}
	case session.StepDGS:
		format, paths, err := m.dgsArgs(v)
		if err != nil {
			return nil, err
		}
		m.runID++
		return m.loadDGSCmd(m.runID, format, paths), nil
	case session.StepComputeLandTie:
		m.runID++
		return m.landTieCmd(m.runID), nil
	case session.StepComputeBias:
		m.runID++
		return m.biasCmd(m.runID), nil
	}
	return nil, nil
}

func (m model) station(name string) (database.Station, bool) {
	if m.opts.db == nil {
		return database.Station{}, false
	}
	return m.opts.db.Station(name)
}

// dgsArgs reads "[format:]path ...". Without a prefix the ship's laptop
// layout is used.
func (m model) dgsArgs(v string) (dgs.Format, []string, error) {
	paths := strings.Fields(v)
	if len(paths) == 0 {
		return 0, nil, errors.New("no DGS files given")
	}
	if prefix, rest, ok := strings.Cut(paths[0], ":"); ok && len(prefix) > 1 {
		f, err := dgs.ParseFormat(prefix)
		if err != nil {
			return 0, nil, err
		}
		paths[0] = rest
		if rest == "" {
			paths = paths[1:]
		}
		return f, paths, nil
	}
	f, err := dgs.FormatForShip(m.sess.Tie().Ship.DisplayName())
	return f, paths, err
}

func (m model) openCmd(path string) tea.Cmd {
	o := m.opts
	return func() tea.Msg {
		opts := []session.Option{
			session.WithFilterMode(o.cfg.FilterMode),
			session.WithFAAFactor(o.cfg.FAAFactor),
		}
		if o.db != nil {
			opts = append(opts, session.WithDatabase(o.db))
		}
		if o.replay != nil {
			opts = append(opts, session.WithHeightReplay(o.replay))
		}
		if path == "" {
			return tieOpenedMsg{sess: session.New(models.NewTie(), opts...), info: "New tie."}
		}
		t, err := session.LoadTie(path)
		if err != nil {
			return errMsg{err: err}
		}
		sess := session.New(t, opts...)
		info := "Opened " + path + "."
		if cal := t.LandMeter.CalFilePath; cal != "" {
			if err := sess.LoadCalibration(cal); err != nil {
				info += " Calibration table not reloaded: " + err.Error()
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if n, err := sess.ReloadDGSFiles(ctx); err != nil {
			info += " DGS files not reloaded: " + err.Error()
		} else if n > 0 {
			info += fmt.Sprintf(" %d meter samples reloaded.", n)
		}
		slog.Info("tie opened", "path", path)
		return tieOpenedMsg{sess: sess, path: path, info: info}
	}
}

func (m model) loadDGSCmd(runID int, format dgs.Format, paths []string) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := s.LoadDGSFiles(ctx, format, paths)
		if err != nil {
			return errMsg{err: err}
		}
		slog.Info("dgs loaded", "format", format, "files", len(paths), "samples", n)
		return dgsLoadedMsg{runID: runID, samples: n}
	}
}

func (m model) landTieCmd(runID int) tea.Cmd {
	s := m.sess
	return func() tea.Msg {
		res, err := s.ComputeLandTie()
		if err != nil {
			return errMsg{err: err}
		}
		slog.Info("land tie computed", "gravity", res.AbsoluteGravity, "drift", res.Drift)
		return landTieDoneMsg{runID: runID, res: res, uncovered: s.UncoveredCounts()}
	}
}

func (m *model) biasCmd(runID int) tea.Cmd {
	s := m.sess
	tiePath := m.currentTiePath()
	dir := filepath.Dir(tiePath)
	return func() tea.Msg {
		res, err := s.ComputeBias()
		if err != nil {
			return errMsg{err: err}
		}
		if err := s.Save(tiePath); err != nil {
			return errMsg{err: err}
		}
		t := s.Tie()
		reportPath := session.DefaultReportPath(dir, t.Ship.DisplayName(), time.Now())
		if err := writeReport(reportPath, t, s.FAAFactor()); err != nil {
			return errMsg{err: err}
		}
		slog.Info("bias computed", "bias", res.Bias, "tie", tiePath, "report", reportPath)
		return biasDoneMsg{runID: runID, res: res, reportPath: reportPath}
	}
}

func (m *model) currentTiePath() string {
	if m.tiePath == "" {
		m.tiePath = session.DefaultTiePath(m.opts.cfg.TieDir, m.sess.Tie().Ship.DisplayName(), time.Now())
	}
	return m.tiePath
}

// saveCmd writes the tie after every answer so an interrupted tie can be
// resumed. Nothing is written before the ship is known.
func (m *model) saveCmd() tea.Cmd {
	t := m.sess.Tie()
	if t.Ship.Name == "" {
		return nil
	}
	path := m.currentTiePath()
	return func() tea.Msg {
		if err := session.SaveTie(path, t); err != nil {
			return errMsg{err: err}
		}
		return savedMsg{path: path}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	var (
		dbDir  = flag.String("db", cfg.DBDir, "directory holding stations.db, landmeters.db and ships.db")
		tieDir = flag.String("dir", cfg.TieDir, "directory for new tie files and reports")
		replay = flag.String("replay", "", "comma separated DGS files whose quartile timestamps stamp the water heights (bench testing)")
		format = flag.String("replay-format", "standard", "format of the -replay files")
	)
	flag.Parse()
	cfg.TieDir = *tieDir

	var logOut io.Writer = io.Discard
	if cfg.LogFile != "" {
		f, err := tea.LogToFile(cfg.LogFile, "gravtie")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	config.NewLogger(logOut, cfg.LogLevel, cfg.LogFormat)

	o := options{cfg: cfg, tiePath: flag.Arg(0)}
	if db, err := database.Open(*dbDir); err != nil {
		slog.Warn("station database unavailable", "dir", *dbDir, "err", err)
	} else {
		o.db = db
	}
	if *replay != "" {
		clock, err := replayClock(*replay, *format)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		o.replay = clock
	}

	p := tea.NewProgram(initialModel(o), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func replayClock(files, formatName string) (*session.SeriesClock, error) {
	f, err := dgs.ParseFormat(formatName)
	if err != nil {
		return nil, err
	}
	series, err := dgs.ReadFiles(context.Background(), strings.Split(files, ","), f)
	if err != nil {
		return nil, err
	}
	return session.NewSeriesClock(series), nil
}
