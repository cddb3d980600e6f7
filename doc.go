// Package xlvba embeds, detects, and repairs VBA macro projects inside
// OOXML spreadsheet packages (.xlsm workbooks and .xlam add-ins).
//
// A macro-enabled package is a ZIP archive of XML parts plus one opaque
// binary part (xl/vbaProject.bin) holding the compiled VBA project. Writers
// that are not the host application routinely produce packages whose macro
// registration metadata is missing or wrong even though the project bytes
// survive, which makes the host silently treat the file as macro-free. This
// package provides the format-level plumbing to fix that without driving
// the host application:
//
//   - DecompressStream decodes the MS-OVBA 2.4.1 compressed containers that
//     store module source inside the project binary.
//   - HasSymbol and ExtractModuleSource locate macro modules inside the
//     compound-file project binary and test for procedure names.
//   - InjectOrRepair surgically patches the package metadata (content
//     types, relationships, workbook and worksheet code names, application
//     properties, ribbon customization) and writes the project part, leaving
//     every untouched part byte-identical.
//   - Embed orchestrates the embedding strategies: copying the project from
//     a donor package, injecting a collaborator-supplied default binary, or
//     repairing metadata around an existing project.
//   - EmbedModule imports literal module source through the host
//     application's automation surface where one exists (COM on Windows,
//     AppleScript plus UI scripting on macOS).
//   - Inspect reports macro-related facts about a package for diagnostics.
//
// # Basic Usage
//
// Copy a working VBA project from a donor workbook into a freshly generated
// one and register it:
//
//	err := xlvba.Embed("report.xlsm",
//		xlvba.WithDonor("template.xlsm"),
//		xlvba.WithCallback("ClearMLDatasetExcel_Run"),
//		xlvba.WithOverwrite(true))
//
// Repair the registration metadata of a package whose project bytes are
// already in place:
//
//	err := xlvba.Embed("report.xlsm", xlvba.WithDefaultProject(loadDefault))
//
// # Failure Model
//
// Malformed compressed streams surface as ErrDecode, missing required
// package parts as ErrRepair, unusable donors as ErrDonor, and
// host-automation problems as ErrPlatform, ErrAutomationPermission, or
// ErrAutomationTimeout. Cosmetic patches (application properties, ribbon,
// quarantine clearing) are best-effort and never fail the operation.
//
// All operations are synchronous and stateless; packages are rewritten
// atomically (write-temp-then-rename), so a failed or interrupted call
// never leaves a corrupt file behind.
package xlvba
