package testutil

import "strings"

// Sample TOPCONS result file, as found in a downloaded archive.
const (
	ResultSequence = "MTHQTHAYHMVNPSPWPLTGALSALLMTSG"
	ResultSeqName  = "sp|P18945|COX3_CHICK"
)

// ResultTopology is the predicted topology of ResultSequence:
// one membrane segment spanning residues 6..26.
var ResultTopology = "iiiii" + strings.Repeat("M", 21) + "oooo"

// ResultBlock is the expected derived output for ResultText.
var ResultBlock = "##############################################################################\n" +
	"TOPCONS2 result file\n" +
	"##############################################################################\n" +
	"Sequence number: 1\n" +
	"Sequence name: " + ResultSeqName + " Cytochrome c oxidase subunit 3\n" +
	"Sequence length: 30 aa.\n" +
	"Sequence:\n" +
	ResultSequence + "\n" +
	"\n" +
	"TOPCONS predicted topology:\n" +
	ResultTopology + "\n" +
	"\n"

// ResultText is a complete result file.
var ResultText = ResultBlock +
	"OCTOPUS predicted topology:\n" +
	ResultTopology + "\n" +
	"\n" +
	"Predicted Delta-G-values (kcal/mol) (left column=sequence position; right column=Delta-G)\n" +
	"\n" +
	"1 -0.818\n"
