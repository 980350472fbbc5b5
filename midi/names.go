package midi

import "fmt"

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the scientific pitch name, middle C (60) is C4
func NoteName(note uint8) string {
	return fmt.Sprintf("%s%d", noteNames[note%12], int(note)/12-1)
}

// IsBlack reports whether the note is a black key
func IsBlack(note uint8) bool {
	switch note % 12 {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}

// Controller numbers used by the control widgets
const (
	CCBankSelect          uint8 = 0
	CCModulation          uint8 = 1
	CCChannelVolume       uint8 = 7
	CCBankSelectLSB       uint8 = 32
	CCAllSoundOff         uint8 = 120
	CCResetAllControllers uint8 = 121
	CCAllNotesOff         uint8 = 123
)

var ccNames = map[uint8]string{
	0:   "Bank Select",
	1:   "Modulation",
	2:   "Breath Controller",
	4:   "Foot Controller",
	5:   "Portamento Time",
	6:   "Data Entry",
	7:   "Channel Volume",
	8:   "Balance",
	10:  "Pan",
	11:  "Expression",
	12:  "Effect Control 1",
	13:  "Effect Control 2",
	32:  "Bank Select LSB",
	38:  "Data Entry LSB",
	64:  "Sustain Pedal",
	65:  "Portamento",
	66:  "Sostenuto",
	67:  "Soft Pedal",
	68:  "Legato Footswitch",
	69:  "Hold 2",
	70:  "Sound Variation",
	71:  "Resonance",
	72:  "Release Time",
	73:  "Attack Time",
	74:  "Brightness",
	84:  "Portamento Control",
	91:  "Reverb Send",
	93:  "Chorus Send",
	96:  "Data Increment",
	97:  "Data Decrement",
	98:  "NRPN LSB",
	99:  "NRPN MSB",
	100: "RPN LSB",
	101: "RPN MSB",
	120: "All Sound Off",
	121: "Reset All Controllers",
	122: "Local Control",
	123: "All Notes Off",
	124: "Omni Mode Off",
	125: "Omni Mode On",
	126: "Mono Mode",
	127: "Poly Mode",
}

// CCName returns the standard controller name or "CC <n>"
func CCName(controller uint8) string {
	if name, ok := ccNames[controller]; ok {
		return name
	}
	return fmt.Sprintf("CC %d", controller)
}

// General MIDI level 1 program names, index = program number 0-127
var gmPrograms = [128]string{
	"Acoustic Grand Piano", "Bright Acoustic Piano", "Electric Grand Piano", "Honky-tonk Piano",
	"Electric Piano 1", "Electric Piano 2", "Harpsichord", "Clavinet",
	"Celesta", "Glockenspiel", "Music Box", "Vibraphone",
	"Marimba", "Xylophone", "Tubular Bells", "Dulcimer",
	"Drawbar Organ", "Percussive Organ", "Rock Organ", "Church Organ",
	"Reed Organ", "Accordion", "Harmonica", "Tango Accordion",
	"Acoustic Guitar (nylon)", "Acoustic Guitar (steel)", "Electric Guitar (jazz)", "Electric Guitar (clean)",
	"Electric Guitar (muted)", "Overdriven Guitar", "Distortion Guitar", "Guitar Harmonics",
	"Acoustic Bass", "Electric Bass (finger)", "Electric Bass (pick)", "Fretless Bass",
	"Slap Bass 1", "Slap Bass 2", "Synth Bass 1", "Synth Bass 2",
	"Violin", "Viola", "Cello", "Contrabass",
	"Tremolo Strings", "Pizzicato Strings", "Orchestral Harp", "Timpani",
	"String Ensemble 1", "String Ensemble 2", "Synth Strings 1", "Synth Strings 2",
	"Choir Aahs", "Voice Oohs", "Synth Choir", "Orchestra Hit",
	"Trumpet", "Trombone", "Tuba", "Muted Trumpet",
	"French Horn", "Brass Section", "Synth Brass 1", "Synth Brass 2",
	"Soprano Sax", "Alto Sax", "Tenor Sax", "Baritone Sax",
	"Oboe", "English Horn", "Bassoon", "Clarinet",
	"Piccolo", "Flute", "Recorder", "Pan Flute",
	"Blown Bottle", "Shakuhachi", "Whistle", "Ocarina",
	"Lead 1 (square)", "Lead 2 (sawtooth)", "Lead 3 (calliope)", "Lead 4 (chiff)",
	"Lead 5 (charang)", "Lead 6 (voice)", "Lead 7 (fifths)", "Lead 8 (bass + lead)",
	"Pad 1 (new age)", "Pad 2 (warm)", "Pad 3 (polysynth)", "Pad 4 (choir)",
	"Pad 5 (bowed)", "Pad 6 (metallic)", "Pad 7 (halo)", "Pad 8 (sweep)",
	"FX 1 (rain)", "FX 2 (soundtrack)", "FX 3 (crystal)", "FX 4 (atmosphere)",
	"FX 5 (brightness)", "FX 6 (goblins)", "FX 7 (echoes)", "FX 8 (sci-fi)",
	"Sitar", "Banjo", "Shamisen", "Koto",
	"Kalimba", "Bagpipe", "Fiddle", "Shanai",
	"Tinkle Bell", "Agogo", "Steel Drums", "Woodblock",
	"Taiko Drum", "Melodic Tom", "Synth Drum", "Reverse Cymbal",
	"Guitar Fret Noise", "Breath Noise", "Seashore", "Bird Tweet",
	"Telephone Ring", "Helicopter", "Applause", "Gunshot",
}

// ProgramName returns the General MIDI name of a 0-based program number
func ProgramName(program uint8) string {
	if int(program) >= len(gmPrograms) {
		return fmt.Sprintf("Program %d", int(program)+1)
	}
	return gmPrograms[program]
}
