package dashboard

import (
	"bytes"
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"parkmaster-dashboard/api"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

type page struct {
	Title string
	Error string
	Year  int
}

type homePage struct {
	page
	State     ConnectionState
	HealthAge string
}

type imagesPage struct {
	page
	Images []api.ImageInfo
}

type vehiclesPage struct {
	page
	Cards []vehicleCard
}

type vehicleCard struct {
	api.VehicleSnapshot
	Slot     string
	Title    string
	ImageURL string
}

func newVehicleCards(b Backend, pair VehiclePair) []vehicleCard {
	return []vehicleCard{
		{VehicleSnapshot: pair.Previous, Slot: "previous", Title: "Previous", ImageURL: b.ImageURL(pair.Previous.ImageName)},
		{VehicleSnapshot: pair.Current, Slot: "current", Title: "Current", ImageURL: b.ImageURL(pair.Current.ImageName)},
	}
}

// render executes into a buffer first so a template error still yields a
// clean 500.
func render(w http.ResponseWriter, name string, data interface{}) error {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, err := buf.WriteTo(w)
	return err
}
