package publish

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/gr-butler/weatherlog/buffer"
	"github.com/gr-butler/weatherlog/calibration"
	"github.com/gr-butler/weatherlog/env"
	"github.com/gr-butler/weatherlog/record"
	"github.com/gr-butler/weatherlog/sensors"
	logger "github.com/sirupsen/logrus"
)

/*

https://wow.metoffice.gov.uk/support/dataformats

 WOW expects an HTTP request, in the form of either GET or POST, to the following URL. When received, WOW will interpret and validate the information supplied and respond as below.

The URL to send your request to is: http://wow.metoffice.gov.uk/automaticreading? followed by a set of key/value pairs indicating pieces of data.

 All uploads must contain 4 pieces of mandatory information plus at least 1 piece of weather data.

    Site ID - siteid:
    Authentication Key - siteAuthenticationKey:
    Date - dateutc: YYYY-mm-DD HH:mm:ss in UTC, ':' encoded as %3A and the space as '+' or %20.
    Software Type - softwaretype

KEY				Description															UNIT

baromin 		Barometric Pressure (see note) 										Inch of Mercury
dewptf 			Outdoor Dewpoint 													Fahrenheit
humidity 		Outdoor Humidity 													0-100 %
rainin 			Accumulated rainfall since the previous observation 				Inches
tempf 			Outdoor Temperature 												Fahrenheit
winddir 		Instantaneous Wind Direction 										Degrees (0-360)
windspeedmph 	Instantaneous Wind Speed 											Miles per Hour
windgustmph 	Current Wind Gust (using software specific time period) 			Miles per Hour

*/

const (
	wowURL      = "http://wow.metoffice.gov.uk/automaticreading?"
	kmhToMph    = 0.621371
	wowTimeout  = time.Second * 30
	wowDateTime = "2006-01-02 15:04:05"
)

type weatherData struct {
	SiteId       string   `url:"siteid,omitempty"`
	AuthKey      string   `url:"siteAuthenticationKey,omitempty"`
	DateString   string   `url:"dateutc,omitempty"`
	SoftwareType string   `url:"softwaretype,omitempty"`
	PressureIn   float64  `url:"baromin,omitempty"`
	Humidity     float64  `url:"humidity,omitempty"`
	TempF        *float64 `url:"tempf,omitempty"`
	DewPointF    *float64 `url:"dewptf,omitempty"`
	RainIn       float64  `url:"rainin"`
	WindDir      *float64 `url:"winddir,omitempty"`
	WindSpeedMph *float64 `url:"windspeedmph,omitempty"`
	WindGustMph  *float64 `url:"windgustmph,omitempty"`
}

// WOWReporter uploads an observation to the Met Office WOW site every report
// period, built from the samples seen since the previous upload.
type WOWReporter struct {
	cfg       env.WOWConfig
	software  string
	elevation float64
	every     time.Duration
	interval  time.Duration
	table     sensors.DirectionTable
	baseURL   string
	send      func(ctx context.Context, url string) error
	client    *http.Client

	lock       sync.Mutex
	lastReport time.Time
	prev       record.RawSample
	havePrev   bool
	rainPulses uint64
	windBuf    *buffer.SampleBuffer // km/h per sample
	wg         sync.WaitGroup
}

func NewWOWReporter(cfg env.WOWConfig, software string, elevation float64, interval time.Duration, table sensors.DirectionTable) *WOWReporter {
	every := time.Minute * env.ReportFreqMin
	w := &WOWReporter{
		cfg:       cfg,
		software:  software,
		elevation: elevation,
		every:     every,
		interval:  interval,
		table:     table,
		baseURL:   wowURL,
		client:    &http.Client{Timeout: wowTimeout},
		windBuf:   buffer.NewBuffer(int(every / interval)),
	}
	w.send = w.get
	return w
}

// pulse deltas between consecutive samples; totals restart with each batch
func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}

func (w *WOWReporter) Publish(_ context.Context, s record.RawSample) error {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.havePrev {
		w.rainPulses += delta(s.RainPulses, w.prev.RainPulses)
		if dt := s.Time.Sub(w.prev.Time).Seconds(); dt > 0 {
			wind := delta(s.WindPulses, w.prev.WindPulses)
			w.windBuf.AddItem(float64(wind) / dt * env.KmhPerTick)
		}
	} else {
		w.rainPulses += s.RainPulses
	}
	w.prev = s
	w.havePrev = true

	if w.lastReport.IsZero() {
		w.lastReport = s.Time
		return nil
	}
	if s.Time.Sub(w.lastReport) < w.every {
		return nil
	}

	data := w.prepData(s)
	w.rainPulses = 0
	w.windBuf.Reset()
	w.lastReport = s.Time

	vals, err := query.Values(data)
	if err != nil {
		return fmt.Errorf("%w: wow encode: %v", ErrPublish, err)
	}
	logger.Debugf("WOW data: [%v]", vals)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.send(context.Background(), w.baseURL+vals.Encode()); err != nil {
			logger.Errorf("%v: wow upload [%v]", ErrPublish, err)
			Prom_publishErrors.WithLabelValues("wow").Inc()
		}
	}()
	return nil
}

// build the observation from the latest sample and the accumulated window
func (w *WOWReporter) prepData(s record.RawSample) *weatherData {
	wd := weatherData{
		SiteId:       w.cfg.SiteID,
		AuthKey:      w.cfg.Pin,
		DateString:   s.Time.UTC().Format(wowDateTime),
		SoftwareType: w.software,
	}

	tempC, haveTemp := consensus(s.TempPrimary, s.TempSecondary)
	if haveTemp {
		tempF := ctof(tempC)
		wd.TempF = &tempF
	}
	if !math.IsNaN(s.Pressure) && haveTemp {
		mslp := calibration.SeaLevelCalibration(w.elevation, tempC, s.Pressure)
		wd.PressureIn = math.Round(mslp*env.HPaToInHg*1000) / 1000
	}
	if !math.IsNaN(s.Humidity) {
		wd.Humidity = s.Humidity
		if haveTemp {
			//Td = T - ((100 - RH)/5.)
			dewPointF := ctof(tempC - ((100 - s.Humidity) / 5.0))
			wd.DewPointF = &dewPointF
		}
	}

	wd.RainIn = math.Round(float64(w.rainPulses)*env.MMPerBucketTip/env.MmToInch*1000) / 1000

	if !w.windBuf.Empty() {
		avg, _, _, _ := w.windBuf.GetAverageMinMaxSum()
		speed := math.Round(float64(avg)*kmhToMph*10) / 10
		gust := math.Round(float64(w.windBuf.MaxRollingAverage(w.gustWindow()))*kmhToMph*10) / 10
		wd.WindSpeedMph = &speed
		wd.WindGustMph = &gust
	}

	if s.WindDirOK {
		if label, ok := w.table.Lookup(s.WindDirTicks); ok {
			if deg, ok := sensors.Degrees(label); ok {
				wd.WindDir = &deg
			}
		}
	}
	return &wd
}

// gustWindow is the number of samples covering at least the gust period.
func (w *WOWReporter) gustWindow() int {
	return int(math.Ceil(float64(time.Second*env.GustSeconds) / float64(w.interval)))
}

func consensus(t1, t2 float64) (float64, bool) {
	switch {
	case !math.IsNaN(t1) && !math.IsNaN(t2):
		c, _ := calibration.ConsensusTemperature(t1, t2)
		return c, true
	case !math.IsNaN(t1):
		return t1, true
	case !math.IsNaN(t2):
		return t2, true
	}
	return 0, false
}

func ctof(c float64) float64 {
	//(0°C × 9/5) + 32 = 32°F
	return ((c * 9 / 5) + 32)
}

func (w *WOWReporter) get(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP [%v]", resp.Status)
	}
	return nil
}

// Close waits for uploads in flight.
func (w *WOWReporter) Close() error {
	w.wg.Wait()
	return nil
}
