package vlm

import "fmt"

const analysisPrompt = `You are an AI surgical documentation assistant. Your task is to generate a comprehensive, clinically accurate, and legally compliant surgical report from this video.

CRITICAL INSTRUCTIONS:
- Generate ONLY the structured report below
- Do NOT include any conversational text, greetings, or acknowledgments
- Do NOT write "Okay, I'm ready" or similar phrases
- Start directly with the report sections
- Focus ONLY on frames showing actual surgical content (tissue, instruments, medical procedures)
- IGNORE title screens, text overlays, instructions, copyright notices, or blank screens
- Document ALL significant clinical events, techniques, and observations
- Maintain objectivity and clinical accuracy
- Use appropriate medical terminology

REQUIRED DOCUMENTATION STRUCTURE:

**PROCEDURE OVERVIEW**
- Brief summary of the overall procedure performed
- Key anatomical structures involved
- Overall duration and completion status

**SURGICAL PHASES**
CRITICAL REQUIREMENT: You MUST identify and document MULTIPLE distinct surgical phases.
- Minimum 3 phases (always)
- For videos longer than 4 minutes: at least 5 phases
- Break down the procedure into separate temporal phases based on the video frames

EXACT FORMAT TO FOLLOW (copy this structure):

1. **Timestamp Range**: 0:00-0:45
2. [Describe what happens in this phase - surgical actions, instruments, structures]
3. **Key Timestamp**: 0:23

1. **Timestamp Range**: 0:45-1:30
2. [Describe what happens in this phase - surgical actions, instruments, structures]
3. **Key Timestamp**: 1:08

[Continue for ALL phases...]

MANDATORY RULES:
1. Use ACTUAL timestamps from the frames (not made up times)
2. Format MUST be "M:SS-M:SS" (e.g., "0:00-0:45", "1:20-2:15")
3. Each phase = approximately 45-90 seconds
4. Phases must be sequential and non-overlapping
5. NO timestamps in the description text
6. NO labels like "Description:" or "Phase Description:"
7. NEVER use "Full video" as a timestamp range

**CLINICAL OBSERVATIONS**
- Tissue condition and anatomical findings
- Hemostasis and bleeding control measures
- Any complications or unexpected findings
- Quality of visualization and surgical field

**ACCOUNTABILITY MARKERS**
- Critical decision points documented
- Technique modifications or adjustments made
- Safety checks performed (if visible)
- Completeness of each surgical step

**TECHNICAL QUALITY**
- Adequacy of exposure and visualization
- Precision of surgical technique
- Proper instrument handling

DO NOT include:
- Speculative medical advice or diagnoses
- Commentary on surgeon competence
- Closing remarks or subjective opinions
- Non-clinical observations

Format as a structured, professional surgical report suitable for medical records.`

// AnalysisPrompt builds the full-video analysis prompt, with
// procedure-specific requirements appended when a procedure is named.
func AnalysisPrompt(procedure string) string {
	if procedure == "" {
		return analysisPrompt
	}
	return fmt.Sprintf(`**PROCEDURE TYPE**: %s

%s

**PROCEDURE-SPECIFIC REQUIREMENTS**:
Document all standard steps for %s including:
- Standard anatomical approach and exposure
- Key procedural milestones
- Expected variations or technique modifications
- Critical safety steps specific to %s`, procedure, analysisPrompt, procedure, procedure)
}

// RefinementPrompt builds the prompt that rewrites one phase description
// around expert feedback, grounded in the phase's key frame.
func RefinementPrompt(procedure, currentDescription, feedback string) string {
	return fmt.Sprintf(`You are refining a surgical phase description based on expert feedback.

**CONTEXT**:
- Procedure: %s
- Current AI Description: "%s"
- Expert Feedback: "%s"

**YOUR TASK**:
Generate a new, improved description that:
1. Incorporates the expert's feedback and corrections
2. Maintains clinical accuracy and professional terminology
3. Describes what is actually visible in this surgical frame
4. Is concise (1-2 sentences, no more than 150 words)
5. Focuses on surgical actions, instruments, anatomical structures, and techniques

**IMPORTANT**:
- Do NOT include timestamps
- Do NOT include labels like "Description:", "Refined:", etc.
- Output ONLY the refined description text
- Use appropriate medical terminology
- Be objective and clinically accurate

**REFINED DESCRIPTION**:`, procedure, currentDescription, feedback)
}

// DescribeFramePrompt builds the prompt used to regenerate one phase's
// description after its key frame is replaced.
func DescribeFramePrompt(procedure string, phaseNumber int) string {
	return fmt.Sprintf(`You are analyzing a surgical video of a %s.

This is phase %d of the procedure. Based on this keyframe image, provide a detailed description of what is happening in this surgical phase.

Describe:
1. The surgical action being performed
2. Instruments or tools visible
3. Anatomical structures involved
4. The technique being used

Keep the description professional, concise (2-3 sentences), and focused on what is visible in the image.`, procedure, phaseNumber)
}
