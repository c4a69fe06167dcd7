// Package docs holds the fixed operational texts shown by the viewer: the CSI
// action protocol, how the alarm travels to CSI and the reference documents.
package docs

const (
	Title  = "Sensores de Inundación LAV Este"
	Credit = "© 2025 Ineco. Creado por AT Comunicaciones LAV ESTE"
)

// Step is one numbered step of a procedure.
type Step struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	Note  string `json:"note,omitempty"`
}

// Procedure is a titled sequence of steps with an optional lead paragraph.
type Procedure struct {
	Title     string `json:"title"`
	LeadTitle string `json:"leadTitle,omitempty"`
	Lead      string `json:"lead"`
	Steps     []Step `json:"steps"`
}

// Document is a reference PDF.
type Document struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Library groups everything for the API.
type Library struct {
	Title           string     `json:"title"`
	Credit          string     `json:"credit"`
	CSIProtocol     Procedure  `json:"csiProtocol"`
	SystemOperation Procedure  `json:"systemOperation"`
	Documents       []Document `json:"documents"`
}

// CSIProtocol is what the CSI operator does when a flood alarm arrives.
var CSIProtocol = Procedure{
	Title:     "Protocolo de Actuación CSI",
	LeadTitle: "Activación de Alarma",
	Lead: "En caso de que el agua llegue al sensor, una alarma de “HouseKeeping” conectada al nodo SDH " +
		"llegará al gestor de telecomunicaciones de la red de datos SDH “1353_NM” de CSI del CRC de Albacete.",
	Steps: []Step{
		{
			Title: "1. Aviso y Visionado de Cámaras",
			Text: "Se dará aviso al regulador para solicitar a CPS el visionado de las cámaras más cercanas " +
				"al PK del sensor o se accederá directamente al visionado si es posible.",
		},
		{
			Title: "2. Confirmación y Aviso a IyV",
			Text: "Si se observa acumulación de agua (o no es posible el visionado), se avisará al personal " +
				"de guardia de IyV para que acuda al emplazamiento.",
		},
		{
			Title: "3. Escalado a Nivel 2",
			Text: "Si se confirma una elevada acumulación de agua, se avisará por llamada al personal de Nivel 2 " +
				"de guardia de la base correspondiente y se informará de las medidas de circulación adoptadas (p.e. LTV).",
		},
		{
			Title: "4. Gestión de Falsa Alarma",
			Text: "Si se detecta que es una falsa alarma, se deberá avisar al personal de IISS de guardia, " +
				"responsable del mantenimiento del equipo.",
		},
	},
}

// SystemOperation follows the alarm from the electrodes to the CSI console.
var SystemOperation = Procedure{
	Title: "Funcionamiento del Sistema de Alarma",
	Lead:  "La alarma de inundación se transporta hasta CSI siguiendo el siguiente flujo:",
	Steps: []Step{
		{
			Title: "1. Sensor de Humedad",
			Text:  "La señal parte del sensor (dos electrodos) al detectar agua en el punto de inundación.",
		},
		{
			Title: "2. Electrónica Detectora",
			Text:  "Instalada en el armario VCA más cercano, el detector se activa cerrando un contacto libre de potencial.",
		},
		{
			Title: "3. Módulo de Red SDH",
			Text:  `La señal se lleva al módulo SDH (1662 o 1642) a través del puerto de alarmas "house keeping".`,
		},
		{
			Title: "4. Gestor de Alarmas CSI",
			Text:  `La alarma se registra y visualiza en el gestor "1353_NM" del CRC de Albacete.`,
			Note:  "ALARMA DE INUNDACION A6V_T_389,17_DM01",
		},
	},
}

const docBase = "https://ivandlpn.github.io/-Aplicaciones-Sensores/archivos/"

// Documents are opened in a new tab.
var Documents = []Document{
	{Name: "IE 161229 Detector Inundación BM Req.pdf", URL: docBase + "IE%20161229%20Detector%20Inundaci%C3%B3n%20BM%20Req.pdf"},
	{Name: "IT-141010-Detector de inundacionLAV.pdf", URL: docBase + "IT-141010-Detector%20de%20inundacionLAV.pdf"},
	{Name: "ITV.151109-PROYECTO.DETECCION.INUNDACION.ALBALI.PK369.V1.0.pdf", URL: docBase + "ITV.151109-PROYECTO.DETECCION.INUNDACION.ALBALI.PK369.V1.0.pdf"},
	{Name: "PM220322_PROCEDIMIENTO SENSOR INUNDACION CSI_V1.0.pdf", URL: docBase + "PM220322_PROCEDIMIENTO%20SENSOR%20INUNDACION%20CSI_V1.0.pdf"},
}

// All returns the whole library.
func All() Library {
	return Library{
		Title:           Title,
		Credit:          Credit,
		CSIProtocol:     CSIProtocol,
		SystemOperation: SystemOperation,
		Documents:       Documents,
	}
}
