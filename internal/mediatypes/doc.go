// Package mediatypes identifies files by content and sorts them into the
// renderer kinds the thumbnail pipeline understands.
//
// Detection sniffs the first bytes of a file with
// github.com/gabriel-vasile/mimetype, strips parameters such as charset, and
// keeps the parent chain so callers can ask whether a mime inherits from
// another one:
//
//	m, err := mediatypes.Detect(path)
//	if err != nil {
//	    return err
//	}
//	switch m.Kind() {
//	case mediatypes.KindImage:
//	    // raster and SVG
//	case mediatypes.KindPDF:
//	    // application/pdf and its descendants
//	}
//
// [Classify] is a pure function over a name and parent list so the
// dispatch rule can be tested without files.
package mediatypes
